// Package scm provides a client for the source-control host's issues
// API. Validate uses a go-github + oauth2 token-test pattern (a
// minimal authenticated call is all it needs); Fetch is a hand-rolled
// GraphQL POST, since no GraphQL client library is available and the
// query shape is small and fixed.
package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"

	"github.com/stevkan/support-tracker/internal/errs"
	"github.com/stevkan/support-tracker/internal/logging"
)

const service = "scm_issues"

// LabeledEvent is a single labeling event in an issue's timeline,
// needed to apply the label-event filter.
type LabeledEvent struct {
	CreatedAt time.Time `json:"createdAt"`
	Label     struct {
		Name string `json:"name"`
	} `json:"label"`
}

// Issue is one node of the GraphQL search result, matching the fields
// requested by the search query below.
type Issue struct {
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	TimelineItems struct {
		Nodes []struct {
			Typename string       `json:"__typename"`
			LabeledEvent
		} `json:"nodes"`
	} `json:"timelineItems"`
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type searchResponse struct {
	Data struct {
		Search struct {
			Nodes []Issue `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Client is a thin client over the SCM host's REST and GraphQL
// endpoints, both authenticated with the same bearer token.
type Client struct {
	httpClient *http.Client
	graphqlURL string
	token      string
	restClient *github.Client
}

// NewClient builds a client for domain (e.g. "github.com" or an
// enterprise host), authenticated with token.
func NewClient(domain, token string) *Client {
	if domain == "" {
		domain = "github.com"
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	restClient := github.NewClient(tc)

	graphqlURL := "https://api.github.com/graphql"
	if domain != "github.com" {
		graphqlURL = fmt.Sprintf("https://%s/api/graphql", domain)
		enterpriseClient, err := github.NewEnterpriseClient(
			fmt.Sprintf("https://%s/api/v3/", domain),
			fmt.Sprintf("https://%s/api/uploads/", domain),
			tc)
		if err == nil {
			restClient = enterpriseClient
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		graphqlURL: graphqlURL,
		token:      token,
		restClient: restClient,
	}
}

// Fetch issues a single GraphQL POST searching repo for open issues
// created after since, optionally restricted to label. Results are
// capped at 100 by the query's own `last: 100`; no pagination is
// performed. Throttle handling mirrors the Q&A clients: a 429 sleeps
// 5.1s and yields no issues for this repo rather than failing the run.
func (c *Client) Fetch(ctx context.Context, org, repo, label string, since time.Time) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, service, "cancelled before fetch")
	}

	var filters []string
	filters = append(filters, fmt.Sprintf("repo:%s/%s", org, repo))
	filters = append(filters, "is:open", "is:issue")
	if label != "" {
		filters = append(filters, fmt.Sprintf("label:%q", label))
	}
	filters = append(filters, fmt.Sprintf("created:>%s", since.UTC().Format("2006-01-02T15:04:05Z")))

	query := fmt.Sprintf(`{
  search(query: %q, type: ISSUE, last: 100) {
    nodes {
      ... on Issue {
        number
        title
        url
        createdAt
        repository { name }
        labels(first: 20) { nodes { name } }
        timelineItems(last: 20, itemTypes: [LABELED_EVENT]) {
          nodes {
            __typename
            ... on LabeledEvent { createdAt label { name } }
          }
        }
      }
    }
  }
}`, strings.Join(filters, " "))

	body, err := json.Marshal(graphQLRequest{Query: query})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, service, "failed to encode graphql request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, service, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, service, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		logging.Info("scm_issues throttled, backing off", "repo", fmt.Sprintf("%s/%s", org, repo))
		time.Sleep(5100 * time.Millisecond)
		return []Issue{}, nil
	}

	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.ClassifyHTTPStatus(resp.StatusCode), service,
			fmt.Sprintf("unexpected status %d for repo %s/%s", resp.StatusCode, org, repo))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.UpstreamMalformed, service, "failed to decode response", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, errs.New(errs.UpstreamMalformed, service, parsed.Errors[0].Message)
	}

	return parsed.Data.Search.Nodes, nil
}

// Validate tests the bearer token with a minimal authenticated REST
// call (client.Users.Get against the authenticated user).
func (c *Client) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	user, resp, err := c.restClient.Users.Get(ctx, "")
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		logging.Error("failed to validate scm token", "error", err, "status_code", status)
		if status != 0 {
			return errs.New(errs.ClassifyHTTPStatus(status), service,
				fmt.Sprintf("validate failed with status %d", status))
		}
		return errs.Wrap(errs.UpstreamUnavailable, service, "unreachable", err)
	}

	logging.Info("scm authentication successful", "username", user.GetLogin())
	return nil
}
