package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	assert.Equal(t, 2*time.Minute+30*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))
}

func TestSecret_Redaction(t *testing.T) {
	secret := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", secret))
	assert.Equal(t, "sk-very-secret", secret.Value())
	assert.True(t, secret.IsSet())

	data, err := json.Marshal(secret)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))
}

func TestSecret_Empty(t *testing.T) {
	var secret Secret
	assert.Equal(t, "", secret.String())
	assert.False(t, secret.IsSet())

	data, err := json.Marshal(secret)
	require.NoError(t, err)
	assert.Equal(t, `""`, string(data))
}

func TestSecret_UnmarshalText(t *testing.T) {
	var secret Secret
	require.NoError(t, secret.UnmarshalText([]byte("sk-live-key")))
	assert.Equal(t, "sk-live-key", secret.Value())
}
