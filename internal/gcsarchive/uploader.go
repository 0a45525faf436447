// Package gcsarchive ships finalized evidence archives to a GCS bucket.
// Objects are written under evidence/ with their archive filename; since
// archive names embed (subject, timestamp, run id), concurrent runs never
// overwrite each other's objects.
package gcsarchive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"

	"github.com/fincontrols/navrecon/internal/recon"
)

const objectPrefix = "evidence"

// Uploader implements recon.Archiver against a GCS bucket.
// It assumes Application Default Credentials are configured.
type Uploader struct {
	bucket string
}

// NewUploader creates an uploader targeting the given bucket.
func NewUploader(bucket string) *Uploader {
	return &Uploader{bucket: bucket}
}

// Upload copies the local archive into the bucket and returns its gs:// URI.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("Upload: open archive %q: %w", localPath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	objectName := path.Join(objectPrefix, filepath.Base(localPath))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy archive to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", u.bucket, objectName), nil
}

// Fetch downloads a previously uploaded archive into destDir and returns the
// local path. Used by auditors re-verifying a sealed package.
func (u *Uploader) Fetch(ctx context.Context, objectName, destDir string) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Fetch: create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(u.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("Fetch: open object %q: %w", objectName, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("Fetch: create dest dir: %w", err)
	}
	destPath := filepath.Join(destDir, path.Base(objectName))
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("Fetch: create local file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("Fetch: copy object: %w", err)
	}
	return destPath, nil
}

// Ensure Uploader implements the recon boundary.
var _ recon.Archiver = (*Uploader)(nil)
