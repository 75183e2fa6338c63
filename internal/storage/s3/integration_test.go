//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/duckmesh/duckviz/internal/storage"
)

func TestStoreAgainstMinIO(t *testing.T) {
	endpoint := envOr("DUCKVIZ_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("DUCKVIZ_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           envOr("DUCKVIZ_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("DUCKVIZ_TEST_S3_BUCKET", "duckviz-it"),
		AccessKeyID:      envOr("DUCKVIZ_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("DUCKVIZ_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "session-1/exec-1.html"
	payload := []byte("<html>chart</html>")
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "text/html"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stat, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) || stat.ContentType != "text/html" {
		t.Fatalf("Stat() = %#v", stat)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q, err = %v", got, err)
	}

	link, err := store.PresignGet(ctx, key, time.Minute)
	if err != nil || !strings.Contains(link, "exec-1.html") {
		t.Fatalf("PresignGet() = %q, %v", link, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
