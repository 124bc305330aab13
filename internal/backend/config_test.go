package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_JitterFn(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg.Retry.JitterFn)

	backoff := 100 * time.Millisecond
	jitter := cfg.Retry.JitterFn(backoff)

	assert.Equal(t, 50*time.Millisecond, jitter,
		"default jitter should be 50% of backoff")
}

func TestDefaultConfig_Backend(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
}
