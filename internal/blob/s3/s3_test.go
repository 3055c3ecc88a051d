package s3blob

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

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// fakeS3 serves path-style object requests for one bucket from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/audio/")
	switch r.Method {
	case http.MethodPut:
		f.puts = append(f.puts, key)
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeClient(t *testing.T, objects map[string]string) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: objects, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "audio",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return c, fake
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://e2.example.com", normaliseEndpoint("e2.example.com", false))
}

func TestReaderGetAndExists(t *testing.T) {
	c, _ := newFakeClient(t, map[string]string{"tts/en-US/v/abc.mp3": "ID3-audio"})
	r := NewReader(c)
	ctx := context.Background()

	ok, err := r.Exists(ctx, "tts/en-US/v/abc.mp3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, "tts/en-US/v/missing.mp3")
	require.NoError(t, err)
	assert.False(t, ok)

	body, err := r.Get(ctx, "tts/en-US/v/abc.mp3")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "ID3-audio", string(data))

	_, err = r.Get(ctx, "tts/en-US/v/missing.mp3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWriterPut(t *testing.T) {
	c, fake := newFakeClient(t, map[string]string{})
	w := NewWriter(c)

	err := w.Put(context.Background(), "tts/en-US/v/new.mp3", strings.NewReader("mp3"), "audio/mpeg")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"tts/en-US/v/new.mp3"}, fake.puts)
	assert.Equal(t, "audio/mpeg", fake.types["tts/en-US/v/new.mp3"])
}
