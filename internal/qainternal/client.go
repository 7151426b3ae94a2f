// Package qainternal provides a client for the internal Q&A upstream,
// identical in shape to the public Q&A client but authenticated with a
// custom X-API-Key header and pointed at an organization-hosted base
// URL instead of the public API.
package qainternal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stevkan/support-tracker/internal/errs"
	"github.com/stevkan/support-tracker/internal/logging"
)

const service = "qa_internal"

// Question is a single item in the internal Q&A upstream's response.
type Question struct {
	QuestionID int    `json:"question_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

type questionsResponse struct {
	Items []Question `json:"items"`
}

// Client is a thin HTTP client for the internal Q&A site, authenticated
// via X-API-Key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a client against baseURL using apiKey for the
// X-API-Key header on every request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Fetch issues GET /questions for a single tag, mirroring the public
// Q&A request shape but with the internal auth header. Throttle
// handling mirrors qapublic's: a 429 sleeps 5.1s and yields no items.
func (c *Client) Fetch(ctx context.Context, tag string, fromDate time.Time) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, service, "cancelled before fetch")
	}

	q := url.Values{}
	q.Set("fromdate", strconv.FormatInt(fromDate.Unix(), 10))
	q.Set("filter", "withbody")
	q.Set("tagged", tag)

	reqURL := c.baseURL + "/questions?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, service, "failed to build request", err)
	}
	req.Header.Set("User-Agent", "support-tracker (internal-qa)")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, service, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		logging.Info("qa_internal throttled, backing off", "tag", tag)
		time.Sleep(5100 * time.Millisecond)
		return []Question{}, nil
	}

	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.ClassifyHTTPStatus(resp.StatusCode), service,
			fmt.Sprintf("unexpected status %d for tag %q", resp.StatusCode, tag))
	}

	var parsed questionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.UpstreamMalformed, service, "failed to decode response", err)
	}

	return parsed.Items, nil
}

// Validate issues a minimal authenticated call, mapping status codes as:
// 401/403 -> invalid/expired or insufficient permissions,
// 404 -> resource missing, other HTTP -> generic with status.
func (c *Client) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/questions?filter=withbody", nil)
	if err != nil {
		return errs.Wrap(errs.Internal, service, "failed to build validate request", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, service, "unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errs.New(errs.ClassifyHTTPStatus(resp.StatusCode), service,
			fmt.Sprintf("validate failed with status %d", resp.StatusCode))
	}
	return nil
}

// CanonicalURL builds the canonical internal-host URL for a question.
func CanonicalURL(internalHost string, questionID int) string {
	return fmt.Sprintf("https://%s/questions/%d", internalHost, questionID)
}
