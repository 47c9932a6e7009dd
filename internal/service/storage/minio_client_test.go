package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsubs-backend/pkg/config"
)

func newTestClient(t *testing.T, endpoint string) *MinioClient {
	t.Helper()
	client, err := NewMinioClient(config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "exports",
	}, "us-east-1", nil)
	require.NoError(t, err)
	return client
}

func TestPresignedDownloadURL(t *testing.T) {
	client := newTestClient(t, "localhost:9000")

	raw, err := client.PresignedDownloadURL(context.Background(), "calls/abc.csv", "calls.csv", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/exports/calls/abc.csv", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("response-content-disposition"), `filename="calls.csv"`)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestUploadPutsObject(t *testing.T) {
	var (
		mu          sync.Mutex
		gotPath     string
		gotBody     string
		contentType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotBody, contentType = r.URL.Path, string(body), r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, strings.TrimPrefix(server.URL, "http://"))

	err := client.Upload(context.Background(), "calls/abc.csv", []byte("id,status\n"), "text/csv")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/exports/calls/abc.csv", gotPath)
	// Plain HTTP uploads use chunked v4 signing, so the payload is framed
	assert.Contains(t, gotBody, "id,status")
	assert.Equal(t, "text/csv", contentType)
}
