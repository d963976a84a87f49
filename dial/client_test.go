package dial

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		switch r.URL.Path {
		case "/v1/files/bucket1/docs/report.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "report body")
		case "/v1/files/bucket1/named":
			w.Header().Set("Content-Disposition", `attachment; filename="real.csv"`)
			_, _ = io.WriteString(w, "a,b")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()

	f, err := c.Download(ctx, "secret", "files/bucket1/docs/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", f.Name)
	assert.Equal(t, "text/plain", f.ContentType)
	assert.Equal(t, []byte("report body"), f.Data)

	f, err = c.Download(ctx, "secret", srv.URL+"/v1/files/bucket1/named")
	require.NoError(t, err)
	assert.Equal(t, "real.csv", f.Name)

	_, err = c.Download(ctx, "secret", "files/bucket1/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_BucketAndUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/bucket":
			_, _ = io.WriteString(w, `{"bucket":"b-123"}`)
		case r.Method == http.MethodPut && r.URL.Path == "/v1/files/b-123/uploads/2026-10/plot.png":
			file, header, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "plot.png", header.Filename)
			assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
			assert.Equal(t, []byte{1, 2, 3}, data)
			_, _ = io.WriteString(w, `{"url":"files/b-123/uploads/2026-10/plot.png","name":"plot.png"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "unexpected")
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	bucket, err := c.Bucket(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "b-123", bucket)

	p := UploadPath(bucket, "out/plot.png", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "files/b-123/uploads/2026-10/plot.png", p)

	url, err := c.Upload(ctx, "k", p, "image/png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "files/b-123/uploads/2026-10/plot.png", url)

	_, err = c.Upload(ctx, "k", "files/other/x.bin", "", []byte{0})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "unexpected", apiErr.Body)
}

func TestDataURI(t *testing.T) {
	assert.Equal(t, "data:text/plain;base64,aGk=", DataURI("text/plain", []byte("hi")))
}
