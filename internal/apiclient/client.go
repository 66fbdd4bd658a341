// Package apiclient is the capture page's typed client for the
// registration API. Response shapes are validated on receipt; a body
// that does not match the contract surfaces as a malformed response
// error instead of silently missing fields.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sprintboard/internal/domain"
)

// ErrMalformedResponse marks a 2xx response whose body did not decode
// into the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// genericRegisterError is shown when a failed registration carries no body
const genericRegisterError = "Failed to register"

// Client talks to the registration API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API at baseURL. The timeout bounds every
// outbound call so an unresponsive backend cannot hold a page forever.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// RankPreview asks for the estimated rank of a time within a country.
// A nil rank with nil error means the backend declined to estimate.
func (c *Client) RankPreview(ctx context.Context, country string, timeSec float64) (*int64, error) {
	q := url.Values{}
	q.Set("country", country)
	q.Set("time", strconv.FormatFloat(timeSec, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rank_preview?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building preview request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rank preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rank preview: unexpected status %d", resp.StatusCode)
	}

	var preview domain.RankPreview
	if err := json.NewDecoder(resp.Body).Decode(&preview); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return preview.Rank, nil
}

// Register posts a combined QR-plus-participant payload. On a non-2xx
// response the returned error carries the response body text verbatim,
// which the capture page shows inline.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (*domain.RegistrationResult, error) {
	body, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("encoding registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(text))
		if msg == "" {
			msg = genericRegisterError
		}
		return nil, errors.New(msg)
	}

	var result domain.RegistrationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.Me.Name == "" {
		return nil, fmt.Errorf("%w: missing me row", ErrMalformedResponse)
	}
	return &result, nil
}
