package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

// New builds an Index from the daemon configuration. dimension is the
// embedding dimensionality used when creating a fresh collection.
func New(cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemIndex(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: dimension,
			UseTLS:     cfg.Qdrant.UseTLS,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
