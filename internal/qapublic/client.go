// Package qapublic provides a client for the public Q&A upstream.
// It issues unauthenticated, single-request fetches tagged by site and
// tag, and absorbs the upstream's throttle response inline rather than
// surfacing it as an error.
package qapublic

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

const service = "qa_public"

// Client is a thin HTTP client for the public Q&A site's /questions
// endpoint. It holds no upstream session; each Fetch issues exactly one
// request and does not paginate.
type Client struct {
	httpClient *http.Client
	baseURL    string
	site       string
}

// Question is a single item in the upstream's /questions response.
type Question struct {
	QuestionID int    `json:"question_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

type questionsResponse struct {
	Items         []Question `json:"items"`
	HasMore       bool       `json:"has_more"`
	QuotaRemain   int        `json:"quota_remaining"`
	BackoffSecs   int        `json:"backoff"`
}

// NewClient builds a client for site (e.g. "stackoverflow"), matching the
// API base URL the upstream uses for all public Q&A sites.
func NewClient(site string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    "https://api.stackexchange.com/2.3",
		site:       site,
	}
}

// SetBaseURL overrides the upstream API base, for pointing a client at
// a test server.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Fetch issues GET /questions for a single tag and returns the parsed
// items. On HTTP 429 it sleeps 5.1s
// and returns an empty slice rather than an error — the caller treats
// the tag as yielding nothing for this run.
func (c *Client) Fetch(ctx context.Context, tag string, fromDate time.Time) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, service, "cancelled before fetch")
	}

	q := url.Values{}
	q.Set("fromdate", strconv.FormatInt(fromDate.Unix(), 10))
	q.Set("site", c.site)
	q.Set("filter", "withbody")
	q.Set("tagged", tag)

	reqURL := c.baseURL + "/questions?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, service, "failed to build request", err)
	}
	req.Header.Set("User-Agent", "support-tracker (public-qa)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, service, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		logging.Info("qa_public throttled, backing off", "tag", tag)
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

// Validate issues a minimal call against the public Q&A site to confirm
// it is reachable. The public API takes no credentials, so this
// only needs to rule out connectivity failures, not auth.
func (c *Client) Validate(ctx context.Context) error {
	reqURL := c.baseURL + "/info?site=" + url.QueryEscape(c.site)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, service, "failed to build validate request", err)
	}

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

// CanonicalURL builds the canonical upstream URL for a question.
func CanonicalURL(site string, questionID int) string {
	host := "stackoverflow.com"
	if site != "" && site != "stackoverflow" {
		host = site + ".stackexchange.com"
	}
	return fmt.Sprintf("https://%s/questions/%d", host, questionID)
}
