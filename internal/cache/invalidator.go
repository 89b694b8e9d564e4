// Package cache notifies an edge cache when a user's ledger view changes.
package cache

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
)

// Invalidator purges cached ledger reads of one user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NoopInvalidator is used when no invalidation endpoint is configured.
type NoopInvalidator struct{}

// Invalidate does nothing.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// PurgeRequest is the body posted to the edge cache.
type PurgeRequest struct {
	UserID string   `json:"user_id"`
	Paths  []string `json:"paths"`
}

// UserPaths lists the API read paths whose responses depend on userID.
func UserPaths(userID string) []string {
	base := "/v1/users/" + url.PathEscape(userID)
	return []string{base + "/score", base + "/activities"}
}

// HTTPInvalidator posts a PurgeRequest to an edge cache endpoint.
type HTTPInvalidator struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewHTTPInvalidator returns an HTTPInvalidator whose calls give up after timeout.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
	}
}

// New returns an HTTPInvalidator for endpoint, or a NoopInvalidator when endpoint is empty.
func New(endpoint, token string, timeout time.Duration) Invalidator {
	if strings.TrimSpace(endpoint) == "" {
		return NoopInvalidator{}
	}
	return NewHTTPInvalidator(endpoint, token, timeout)
}

// Invalidate purges the score and activity list of userID.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, userID string) error {
	body, err := json.Marshal(PurgeRequest{UserID: userID, Paths: UserPaths(userID)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &InvalidationError{UserID: userID, Status: resp.StatusCode, Detail: string(bytes.TrimSpace(detail))}
	}
	return nil
}

// InvalidationError is returned when the edge cache refuses a purge.
type InvalidationError struct {
	UserID string
	Status int
	Detail string
}

func (e *InvalidationError) Error() string {
	msg := fmt.Sprintf("purge %s: edge cache answered %d %s", e.UserID, e.Status, http.StatusText(e.Status))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
