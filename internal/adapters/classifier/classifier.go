// Package classifier provides the two classify.Transport implementations:
// a direct multipart upload and the serverless base64 inference call.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/pointbin/internal/domain/classify"
)

const (
	defaultTimeout = 10 * time.Second
	// bytes of an error body kept for logs
	errorSnippetLen = 200
)

// ErrNotConfigured is returned when no model identifier is set.
var ErrNotConfigured = errors.New("classifier model id not configured")

// Option applies a configuration option to a transport.
type Option func(*base)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) {
		if c != nil {
			b.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(b *base) {
		if d > 0 {
			b.client = &http.Client{Timeout: d}
		}
	}
}

// WithAPIKey sets the api_key query parameter.
func WithAPIKey(key string) Option {
	return func(b *base) { b.apiKey = key }
}

type base struct {
	baseURL string
	modelID string
	apiKey  string
	client  *http.Client
}

func newBase(baseURL, modelID string, opts []Option) base {
	b := base{
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: strings.Trim(modelID, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) endpoint() (string, error) {
	if b.modelID == "" {
		return "", ErrNotConfigured
	}
	u := b.baseURL + "/" + b.modelID
	if b.apiKey != "" {
		u += "?" + url.Values{"api_key": {b.apiKey}}.Encode()
	}
	return u, nil
}

func (b *base) do(req *http.Request) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", classify.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > errorSnippetLen {
			snippet = snippet[:errorSnippetLen]
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", classify.ErrTransport, resp.StatusCode, snippet)
	}
	return body, nil
}

// HTTPTransport uploads the image as a multipart "file" field.
type HTTPTransport struct{ base }

// NewHTTPTransport creates the direct upload transport.
func NewHTTPTransport(baseURL, modelID string, opts ...Option) *HTTPTransport {
	return &HTTPTransport{base: newBase(baseURL, modelID, opts)}
}

// Name implements classify.Transport.
func (t *HTTPTransport) Name() string { return "http" }

// Submit implements classify.Transport.
func (t *HTTPTransport) Submit(ctx context.Context, image []byte) ([]byte, error) {
	u, err := t.endpoint()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "capture.jpg")
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return t.do(req)
}

// ServerlessTransport posts the image base64-encoded, the contract of the
// managed inference endpoint.
type ServerlessTransport struct{ base }

// NewServerlessTransport creates the managed inference transport.
func NewServerlessTransport(baseURL, modelID string, opts ...Option) *ServerlessTransport {
	return &ServerlessTransport{base: newBase(baseURL, modelID, opts)}
}

// Name implements classify.Transport.
func (t *ServerlessTransport) Name() string { return "serverless" }

// Submit implements classify.Transport.
func (t *ServerlessTransport) Submit(ctx context.Context, image []byte) ([]byte, error) {
	u, err := t.endpoint()
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(image)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req)
}

var (
	_ classify.Transport = (*HTTPTransport)(nil)
	_ classify.Transport = (*ServerlessTransport)(nil)
)
