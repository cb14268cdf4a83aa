// Package objstore downloads the warehouse service account key from Cloud
// Storage. This is the run's only fatal prerequisite.
package objstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// KeyObject is the fixed object name holding the BigQuery service key.
const KeyObject = "bigquery-key.json"

// DownloadKey fetches bucket/object into destDir and returns the local path.
func DownloadKey(ctx context.Context, client *storage.Client, bucket, object, destDir string) (string, error) {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	path := filepath.Join(destDir, filepath.Base(object))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
