package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKey(t *testing.T) {
	key := DocumentKey([]byte("%PDF-1.4"))

	assert.True(t, strings.HasPrefix(key, "documents/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.Len(t, key, len("documents/")+64+len(".pdf"))
	assert.Equal(t, key, DocumentKey([]byte("%PDF-1.4")))
	assert.NotEqual(t, key, DocumentKey([]byte("%PDF-1.5")))
}

// fakeS3 records path-style object writes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.puts++
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Client_ArchiveSkipsExisting(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	ctx := context.Background()
	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "docs",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	body := []byte("%PDF-1.4 test body")
	key, err := client.Archive(ctx, "https://example.com/policy.pdf", body)
	require.NoError(t, err)
	assert.Equal(t, DocumentKey(body), key)

	_, err = client.Archive(ctx, "https://example.com/policy.pdf", body)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.puts)
	assert.Contains(t, fake.objects, "/docs/"+key)
}
