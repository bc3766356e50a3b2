package storage_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/storage"
	"github.com/2018wzh/llm-doc-parser/internal/testutil"
)

func TestMinioFetcher_Integration(t *testing.T) {
	m := testutil.StartMinio(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	admin, err := minio.New(m.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("failed to create admin client: %v", err)
	}
	if err := admin.MakeBucket(ctx, "docs", minio.MakeBucketOptions{}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	payload := []byte("发票号码: 12345")
	if _, err := admin.PutObject(ctx, "docs", "2024/invoice.txt", bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("failed to upload object: %v", err)
	}

	fetcher, err := storage.NewMinio(storage.MinioConfig{
		Endpoint:  m.URL(),
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
	})
	if err != nil {
		t.Fatalf("NewMinio failed: %v", err)
	}

	t.Run("bucket/object locator", func(t *testing.T) {
		data, err := fetcher.Fetch(ctx, "docs/2024/invoice.txt")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if !bytes.Equal(data, payload) {
			t.Errorf("got %q, want %q", data, payload)
		}
	})

	t.Run("url locator", func(t *testing.T) {
		data, err := fetcher.Fetch(ctx, m.URL()+"/docs/2024/invoice.txt")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if !bytes.Equal(data, payload) {
			t.Errorf("got %q, want %q", data, payload)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, "docs/missing.txt")
		if !apperr.Is(err, apperr.KindStorage) {
			t.Fatalf("expected storage error, got %v", err)
		}
	})
}
