// Package archive keeps a copy of every raw CSV upload in Google Cloud
// Storage so an import can be audited or replayed.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"gastos/internal/log"
)

const uploadTimeout = 2 * time.Minute

// Upload describes one raw file to archive.
type Upload struct {
	Owner    string
	BatchID  string
	Received time.Time
	Body     []byte
}

// ObjectName is imports/<owner>/<yyyy-mm-dd>/<batch>.csv.
func (u Upload) ObjectName() string {
	owner := strings.TrimSpace(u.Owner)
	if owner == "" {
		owner = "unknown"
	}
	return fmt.Sprintf("imports/%s/%s/%s.csv", owner, u.Received.UTC().Format("2006-01-02"), u.BatchID)
}

// Archiver stores raw uploads and returns their gs:// URI.
type Archiver interface {
	Archive(ctx context.Context, u Upload) (string, error)
}

// objectWriter opens a writer for one object. It exists so tests can swap
// out the storage client.
type objectWriter func(ctx context.Context, bucket, object string) io.WriteCloser

// GCS writes uploads to a bucket.
type GCS struct {
	bucket string
	client *storage.Client
	open   objectWriter
}

var _ Archiver = (*GCS)(nil)

// NewGCS uses Application Default Credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	g := &GCS{bucket: bucket, client: client}
	g.open = func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "text/csv"
		return w
	}
	return g, nil
}

func (g *GCS) Archive(ctx context.Context, u Upload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	name := u.ObjectName()
	w := g.open(ctx, g.bucket, name)
	if _, err := io.Copy(w, bytes.NewReader(u.Body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy upload to %s: %w", name, err)
	}
	// Close finalizes the object; an error here means nothing was stored.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload %s: %w", name, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", g.bucket, name)
	log.FromContext(ctx).WithComponent(log.ComponentArchive).InfoContext(ctx, "Archived import upload",
		log.FieldBatchID, u.BatchID,
		log.FieldUserID, u.Owner,
		"uri", uri,
		"bytes", len(u.Body))
	return uri, nil
}

func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
