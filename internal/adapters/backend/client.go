// Package backend talks to the profile/points service: a REST profile lookup
// and RPC-style award calls tried over an ordered endpoint list.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

const (
	defaultTimeout  = 10 * time.Second
	errorSnippetLen = 160
)

// Client is stateless per call; it is safe for concurrent use.
type Client struct {
	baseURL      string
	serviceKey   string
	deviceID     string
	deviceSecret string
	http         *http.Client
	logger       logger.Logger
}

// New creates a backend client.
func New(baseURL, serviceKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("backend")
	}
	return c
}

// Configured reports whether both the URL and the service key are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.serviceKey != ""
}

// LookupProfile resolves an identity (RFID UID) to a profile id.
// It returns ErrProfileNotFound when the service answers with no match and
// ErrLookup when the service could not be asked.
func (c *Client) LookupProfile(ctx context.Context, identity string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	u := c.baseURL + "/rest/v1/profiles?rfid_uid=" + url.QueryEscape("eq."+identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookup, err)
	}
	c.authorize(req)
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookup, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrLookup, resp.StatusCode, snippet(resp.Body))
	}
	var rows []struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrLookup, err)
	}
	if len(rows) == 0 || len(rows[0].ID) == 0 || string(rows[0].ID) == "null" {
		return "", ErrProfileNotFound
	}
	return rawID(rows[0].ID), nil
}

// Deliver posts the award to each endpoint in order and returns the name of
// the first one that accepted it. The payload must be resolved.
func (c *Client) Deliver(ctx context.Context, p model.AwardPayload) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if !p.Resolved() {
		return "", fmt.Errorf("%w: payload %s has no profile id", ErrDelivery, p.ID)
	}
	body, err := json.Marshal(rpcBody{ID: p.ProfileID, Points: p.Points, Reason: p.Reason})
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrDelivery, err)
	}

	for _, endpoint := range p.Endpoints {
		err := c.call(ctx, endpoint, body)
		if err == nil {
			metrics.RecordEndpointDelivery(endpoint, "success")
			c.logger.Info(ctx, "award delivered",
				logger.String("endpoint", endpoint),
				logger.String("identity", p.Identity),
				logger.Int("points", p.Points),
			)
			return endpoint, nil
		}
		metrics.RecordEndpointDelivery(endpoint, "failure")
		c.logger.Warn(ctx, "award attempt failed",
			logger.String("endpoint", endpoint),
			logger.String("identity", p.Identity),
			logger.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %d endpoint(s) tried for %s", ErrDelivery, len(p.Endpoints), p.Identity)
}

type rpcBody struct {
	ID     string `json:"in_id"`
	Points int    `json:"in_points"`
	Reason string `json:"in_reason"`
}

func (c *Client) call(ctx context.Context, endpoint string, body []byte) error {
	u := c.baseURL + "/rest/v1/rpc/" + url.PathEscape(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req)
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}
	if c.deviceSecret != "" {
		req.Header.Set("X-Device-Secret", c.deviceSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errorSnippetLen))
	return string(b)
}

// rawID accepts both string and numeric primary keys.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
