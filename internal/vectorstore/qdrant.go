package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port.
	Port int

	// Collection is the collection holding all chunk vectors.
	Collection string

	// VectorSize is the embedding dimensionality; must match the
	// embedding client's output.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures.
	// Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubled per retry.
	// Default: 1s.
	RetryBackoff time.Duration
}

func (c *QdrantConfig) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantIndex is an Index backed by Qdrant's native gRPC client, for
// deployments where the index outlives the daemon or is shared across
// replicas.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant, verifies health, and ensures the
// chunk collection exists with the configured vector size.
func NewQdrantIndex(cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50 * 1024 * 1024),
				grpc.MaxCallSendMsgSize(50 * 1024 * 1024),
			),
		},
	}
	if !cfg.UseTLS {
		clientConfig.GrpcOptions = append(clientConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{client: client, config: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return idx, nil
}

func (i *QdrantIndex) ensureCollection(ctx context.Context) error {
	_, err := i.client.GetCollectionInfo(ctx, i.config.Collection)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("checking collection %s: %w", i.config.Collection, err)
	}

	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(i.config.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", i.config.Collection, err)
	}

	i.logger.Info("created qdrant collection",
		zap.String("collection", i.config.Collection),
		zap.Int("vector_size", i.config.VectorSize),
	)
	return nil
}

// Close closes the gRPC connection.
func (i *QdrantIndex) Close() error {
	if i.client != nil {
		return i.client.Close()
	}
	return nil
}

// Upsert writes entries into the given partition.
func (i *QdrantIndex) Upsert(ctx context.Context, partition string, entries []Entry) error {
	if partition == "" {
		return fmt.Errorf("%w: partition required", ErrInvalidConfig)
	}
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for n, e := range entries {
		e.Payload.Partition = partition
		points[n] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ChunkID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: payloadToQdrant(e.ChunkID, e.Payload),
		}
	}

	err := i.retry(ctx, "upsert", func() error {
		_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: i.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}
	return nil
}

// DeleteDocument removes every vector belonging to documentID from the
// partition.
func (i *QdrantIndex) DeleteDocument(ctx context.Context, partition, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			keywordCondition("partition", partition),
			keywordCondition("document_id", documentID),
		},
	}

	err := i.retry(ctx, "delete", func() error {
		_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: i.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// Query returns up to k nearest neighbors of vector within the partition.
func (i *QdrantIndex) Query(ctx context.Context, partition string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{keywordCondition("partition", partition)},
	}

	var points []*qdrant.ScoredPoint
	err := i.retry(ctx, "query", func() error {
		res, err := i.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: i.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	matches := make([]Match, len(points))
	for n, p := range points {
		matches[n] = qdrantToMatch(p)
	}
	return matches, nil
}

// retry runs op with exponential backoff on transient gRPC failures.
func (i *QdrantIndex) retry(ctx context.Context, name string, op func() error) error {
	backoff := i.config.RetryBackoff

	var err error
	for attempt := 0; attempt <= i.config.MaxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == i.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", name, i.config.MaxRetries, err)
}

// isTransient reports whether an error should be retried.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func payloadToQdrant(chunkID string, p Payload) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"chunk_id":       {Kind: &qdrant.Value_StringValue{StringValue: chunkID}},
		"document_id":    {Kind: &qdrant.Value_StringValue{StringValue: p.DocumentID}},
		"filename":       {Kind: &qdrant.Value_StringValue{StringValue: p.Filename}},
		"chunk_index":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.ChunkIndex)}},
		"text":           {Kind: &qdrant.Value_StringValue{StringValue: p.Text}},
		"partition":      {Kind: &qdrant.Value_StringValue{StringValue: p.Partition}},
		"doc_created_at": {Kind: &qdrant.Value_IntegerValue{IntegerValue: p.DocCreatedAt.UnixNano()}},
	}
}

func qdrantToMatch(p *qdrant.ScoredPoint) Match {
	m := Match{Score: p.Score}
	for key, v := range p.Payload {
		switch key {
		case "chunk_id":
			m.ChunkID = v.GetStringValue()
		case "document_id":
			m.Payload.DocumentID = v.GetStringValue()
		case "filename":
			m.Payload.Filename = v.GetStringValue()
		case "chunk_index":
			m.Payload.ChunkIndex = int(v.GetIntegerValue())
		case "text":
			m.Payload.Text = v.GetStringValue()
		case "partition":
			m.Payload.Partition = v.GetStringValue()
		case "doc_created_at":
			m.Payload.DocCreatedAt = time.Unix(0, v.GetIntegerValue()).UTC()
		}
	}
	return m
}
