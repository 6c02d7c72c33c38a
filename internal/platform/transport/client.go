// Package transport talks to the collection server over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/domain/child"
)

// ErrServer is returned for any non-2xx answer from the server.
var ErrServer = errors.New("transport: server error")

// StatusError carries the HTTP status of a rejected request.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrServer }

// Client uploads records and fetches booklet artifacts. Retries are left to
// the caller; the client makes exactly one request per call.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// New builds a client for the API rooted at baseURL, e.g.
// http://localhost:3001/api.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   rc,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// UploadRecord posts one record with the bearer credential.
func (c *Client) UploadRecord(ctx context.Context, r *child.Record, credential string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(credential).
		SetHeader("Content-Type", "application/json").
		SetBody(r).
		Post("/child-records")
	if err != nil {
		return fmt.Errorf("upload %s: %w", r.HealthID, err)
	}
	if resp.IsError() {
		return statusError("upload "+r.HealthID, resp)
	}
	c.logger.Debug().Str("health_id", r.HealthID).Int("status", resp.StatusCode()).Msg("record posted")
	return nil
}

// FetchBookletArtifact downloads the booklet for a health id as raw bytes.
func (c *Client) FetchBookletArtifact(ctx context.Context, healthID string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("healthId", healthID).
		Get("/health-booklet/{healthId}")
	if err != nil {
		return nil, fmt.Errorf("fetch booklet %s: %w", healthID, err)
	}
	if resp.IsError() {
		return nil, statusError("fetch booklet "+healthID, resp)
	}
	return resp.Body(), nil
}

// Ping reports whether the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError("ping", resp)
	}
	return nil
}

func statusError(op string, resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	return &StatusError{Op: op, Status: resp.StatusCode(), Body: body}
}
