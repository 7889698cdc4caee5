package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Uploader stores a finished export under key and returns its location.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
}

type gcsUploader struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewGCSUploader opens a storage client. credentialsFile may be a path, inline
// JSON, or empty for application default credentials.
func NewGCSUploader(ctx context.Context, log *logger.Logger, bucket, credentialsFile string) (Uploader, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing export bucket")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if creds := strings.TrimSpace(credentialsFile); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &gcsUploader{
		log:    log.With("service", "ExportUploader", "bucket", bucket),
		client: client,
		bucket: bucket,
	}, nil
}

func (u *gcsUploader) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = ContentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	uri := fmt.Sprintf("gs://%s/%s", u.bucket, key)
	u.log.Info("export uploaded", "key", key)
	return uri, nil
}
