package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
)

// MinioConfig configures the MinIO fetcher.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
	Logger    *slog.Logger
}

// MinioFetcher reads objects through the MinIO client.
type MinioFetcher struct {
	client   *minio.Client
	endpoint string
	logger   *slog.Logger
}

var _ Fetcher = (*MinioFetcher)(nil)

// NewMinio creates a MinIO fetcher. The endpoint may carry an http(s)
// scheme, which then overrides Secure.
func NewMinio(cfg MinioConfig) (*MinioFetcher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, apperr.Configuration("storage.minio.endpoint is required")
	}
	secure := cfg.Secure
	if rest, ok := cutScheme(endpoint); ok {
		secure = strings.HasPrefix(strings.ToLower(endpoint), "https://")
		endpoint = strings.TrimSuffix(rest, "/")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, apperr.Configuration(fmt.Sprintf("invalid minio endpoint %q: %v", cfg.Endpoint, err))
	}

	return &MinioFetcher{client: client, endpoint: endpoint, logger: cfg.Logger}, nil
}

// Fetch downloads the whole object.
func (f *MinioFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	if loc.Endpoint != "" && !strings.EqualFold(loc.Endpoint, f.endpoint) {
		f.logger.Warn("locator endpoint differs from configured endpoint, using configured",
			"locator_endpoint", loc.Endpoint, "endpoint", f.endpoint)
	}

	obj, err := f.client.GetObject(ctx, loc.Bucket, loc.Object, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(loc, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(loc, err)
	}

	f.logger.Debug("object fetched", "bucket", loc.Bucket, "object", loc.Object, "bytes", len(data))
	return data, nil
}

func classify(loc Locator, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return apperr.Storage(fmt.Sprintf("object not found: %s", loc), err)
	case "NoSuchBucket":
		return apperr.Storage(fmt.Sprintf("bucket not found: %s", loc.Bucket), err)
	case "AccessDenied":
		return apperr.Storage(fmt.Sprintf("access denied: %s", loc), err)
	}
	return apperr.Storage(fmt.Sprintf("failed to download %s", loc), err)
}
