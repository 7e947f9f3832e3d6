package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricecycle/backend/internal/domain/automation"
	infraconfig "github.com/pricecycle/backend/internal/infrastructure/config"
)

// fakeS3 is a path-style object store that understands PUT and GET.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Archive(t *testing.T) (*S3RunArchive, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	archive, err := NewS3RunArchive(context.Background(), infraconfig.ArchiveConfig{
		Bucket:         "reports",
		Region:         "us-east-1",
		Endpoint:       srv.URL,
		AccessKeyID:    "test-key",
		SecretKey:      "test-secret",
		Prefix:         "runs/",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return archive, fake
}

func TestS3RunArchive_Archive(t *testing.T) {
	archive, fake := newTestS3Archive(t)
	report := testReport(t)
	ctx := context.Background()

	require.NoError(t, archive.Archive(ctx, report))

	key := ReportKey("runs/", report)
	fake.mu.Lock()
	stored, ok := fake.objects["reports/"+key]
	contentType := fake.types["reports/"+key]
	fake.mu.Unlock()
	require.True(t, ok, "object stored under bucket/key")
	assert.Equal(t, "application/json", contentType)

	var decoded automation.RunReport
	require.NoError(t, json.Unmarshal(stored, &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)

	fetched, err := archive.Fetch(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, string(stored), string(fetched))
}

func TestS3RunArchive_FetchMissing(t *testing.T) {
	archive, _ := newTestS3Archive(t)

	_, err := archive.Fetch(context.Background(), "runs/nope.json")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestNewS3RunArchive_Validation(t *testing.T) {
	_, err := NewS3RunArchive(context.Background(), infraconfig.ArchiveConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")

	archive, err := NewS3RunArchive(context.Background(), infraconfig.ArchiveConfig{Bucket: "b", Endpoint: "minio:9000"})
	require.NoError(t, err)
	assert.Equal(t, "b", archive.Bucket())
}
