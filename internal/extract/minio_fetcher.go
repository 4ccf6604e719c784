package extract

import (
	"context"
	"fmt"
	"os"

	miniodb "graphetl/internal/database/minio"

	"github.com/minio/minio-go/v7"
)

// MinIOFetcher downloads minio:// objects into a per-build cache directory.
type MinIOFetcher struct {
	client   *minio.Client
	cacheDir string
}

// NewMinIOFetcher creates a fetcher with a fresh temporary cache directory.
func NewMinIOFetcher(client *minio.Client) (*MinIOFetcher, error) {
	dir, err := os.MkdirTemp("", "graphetl-minio-*")
	if err != nil {
		return nil, fmt.Errorf("creating minio cache dir: %w", err)
	}
	return &MinIOFetcher{client: client, cacheDir: dir}, nil
}

// Fetch downloads one object and returns the local file path.
func (f *MinIOFetcher) Fetch(ctx context.Context, bucket, key string) (string, error) {
	return miniodb.FetchObject(ctx, f.client, bucket, key, f.cacheDir)
}

// Cleanup removes the cache directory and everything fetched into it.
func (f *MinIOFetcher) Cleanup() error {
	return os.RemoveAll(f.cacheDir)
}

var _ ObjectFetcher = (*MinIOFetcher)(nil)
