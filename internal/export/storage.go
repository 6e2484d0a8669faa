package export

import (
	"context"
	"fmt"
	"io"

	"github.com/yourorg/candlestick-service/internal/config"
)

// Storage stores exported snapshots
type Storage interface {
	// Put writes body under key and returns where it was stored
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// NewStorage creates a storage implementation based on the configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStorage(cfg.Local)
	case "s3":
		return NewS3Storage(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
