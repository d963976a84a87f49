// Package dial talks to the file storage API of a DIAL deployment: it
// downloads attached files, resolves the caller's bucket and uploads files
// produced by tools.
package dial

import (
	"bytes"
	"encoding/base64"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// ErrNotFound is returned when the storage has no file at the given URL.
var ErrNotFound = errors.New("dial: file not found")

// APIError is a non-2xx response from the storage API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dial: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// File is a downloaded file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client is a DIAL storage client. Credentials are passed per call because
// every request to the agent carries its own key.
type Client struct {
	endpoint string
	http     *http.Client
	logger   logging.Logger
}

// New creates a Client for the DIAL core at endpoint.
func New(endpoint string, optFns ...func(o *Options)) *Client {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     opts.HTTPClient,
		logger:   opts.Logger,
	}
}

// Endpoint returns the DIAL core base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Download fetches a file. fileURL is either storage-relative
// ("files/<bucket>/<path>") or absolute.
func (c *Client) Download(ctx context.Context, apiKey, fileURL string) (*File, error) {
	target := c.resolve(fileURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	body, resp, err := c.do(req, apiKey)
	if err != nil {
		return nil, err
	}
	f := &File{
		Name:        fileName(resp.Header.Get("Content-Disposition"), fileURL),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        body,
	}
	c.logger.Debug("dial.download", "url", fileURL, "bytes", len(body))
	return f, nil
}

// Bucket returns the bucket owned by apiKey.
func (c *Client) Bucket(ctx context.Context, apiKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/bucket", nil)
	if err != nil {
		return "", err
	}
	body, _, err := c.do(req, apiKey)
	if err != nil {
		return "", err
	}
	bucket := gjson.GetBytes(body, "bucket").String()
	if bucket == "" {
		return "", fmt.Errorf("dial: bucket response has no bucket: %s", truncate(string(body), 200))
	}
	return bucket, nil
}

// Upload stores data at the storage-relative path ("files/<bucket>/...")
// and returns the URL of the stored file.
func (c *Client) Upload(ctx context.Context, apiKey, filePath, contentType string, data []byte) (string, error) {
	filePath = strings.TrimLeft(filePath, "/")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, path.Base(filePath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+"/v1/"+filePath, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	body, _, err := c.do(req, apiKey)
	if err != nil {
		return "", err
	}
	url := gjson.GetBytes(body, "url").String()
	if url == "" {
		url = filePath
	}
	c.logger.Debug("dial.upload", "path", filePath, "bytes", len(data))
	return url, nil
}

// UploadPath builds the conventional location for a tool generated file.
func UploadPath(bucket, name string, now time.Time) string {
	return fmt.Sprintf("files/%s/uploads/%s/%s", bucket, now.Format("2006-01"), path.Base(name))
}

func (c *Client) resolve(fileURL string) string {
	if strings.HasPrefix(fileURL, "http://") || strings.HasPrefix(fileURL, "https://") {
		return fileURL
	}
	fileURL = strings.TrimLeft(fileURL, "/")
	fileURL = strings.TrimPrefix(fileURL, "v1/")
	return c.endpoint + "/v1/" + fileURL
}

func (c *Client) do(req *http.Request, apiKey string) ([]byte, *http.Response, error) {
	if apiKey != "" {
		req.Header.Set("Api-Key", apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &APIError{
			Method:     req.Method,
			URL:        req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 500),
		}
	}
	return body, resp, nil
}

func fileName(disposition, fileURL string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if i := strings.IndexAny(fileURL, "?#"); i >= 0 {
		fileURL = fileURL[:i]
	}
	return path.Base(fileURL)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// DataURI embeds data inline, for when a file cannot be stored.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
