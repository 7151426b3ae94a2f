// Package tracker provides a client for the work-item tracker. Its
// Azure-DevOps-flavored shape (WIQL search, JSON-Patch create) is
// reached by mapping onto github.com/andygrunwald/go-jira rather than
// hand-rolling a second REST client from scratch: a WIQL-equivalent
// search becomes a JQL search over a custom field, and a JSON-Patch
// create becomes an Issue.Create call with the tracker-specific fields
// carried in IssueFields.Unknowns.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/stevkan/support-tracker/internal/errs"
	"github.com/stevkan/support-tracker/pkg/models"
)

const service = "tracker"

// custom field keys a Normalized Issue maps onto when creating a work
// item (System.Title, System.Tags, Custom.IssueID, Custom.IssueType,
// Custom.SDK, Custom.Repository, Custom.IssueURL).
const (
	fieldIssueID    = "Custom.IssueID"
	fieldIssueType  = "Custom.IssueType"
	fieldSDK        = "Custom.SDK"
	fieldRepository = "Custom.Repository"
	fieldIssueURL   = "Custom.IssueURL"
)

// Client is a thin wrapper over go-jira's Issue service, authenticated
// with HTTP Basic auth (username may be empty).
type Client struct {
	client *jira.Client
}

// NewClient builds a client against baseURL using username/token Basic
// auth, matching "work-item tracker: Basic auth" requirement.
func NewClient(baseURL, username, token string) (*Client, error) {
	tp := jira.BasicAuthTransport{Username: username, Password: token}
	c, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, service, "failed to construct tracker client", err)
	}
	return &Client{client: c}, nil
}

// SearchByIssueID runs the WIQL-equivalent "find a work item already
// mirroring this upstream issue" query, returning the tracker's own ids for any hits.
func (c *Client) SearchByIssueID(ctx context.Context, issueID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, service, "cancelled before search")
	}

	jql := fmt.Sprintf(`issuetype = "Issue" AND "%s" = "%s"`, fieldIssueID, issueID)
	issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{MaxResults: 50})
	if err != nil {
		return nil, classifyErr(resp, err, fmt.Sprintf("search for issue id %q failed", issueID))
	}

	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}
	return ids, nil
}

// GetByURL fetches a single work item by the tracker-supplied id,
// matching "the follow-up GET uses the tracker-supplied
// per-work-item URL verbatim" — go-jira addresses work items by id, so
// the caller passes the id it got from SearchByIssueID.
func (c *Client) GetByURL(ctx context.Context, workItemID string) (*MirrorDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, service, "cancelled before get")
	}

	issue, resp, err := c.client.Issue.GetWithContext(ctx, workItemID, nil)
	if err != nil {
		return nil, classifyErr(resp, err, fmt.Sprintf("get work item %q failed", workItemID))
	}

	detail := &MirrorDetail{
		WorkItemID: issue.ID,
		Title:      issue.Fields.Summary,
	}
	if v, ok := issue.Fields.Unknowns[fieldIssueID]; ok {
		if s, ok := v.(string); ok {
			detail.IssueID = s
		}
	}
	return detail, nil
}

// MirrorDetail is the subset of a fetched work item the reconciler
// needs to decide title-equality classification.
type MirrorDetail struct {
	WorkItemID string
	Title      string
	IssueID    string
}

// Create issues the JSON-Patch-equivalent work-item creation call
//, mapping every field of a Normalized Issue onto the tracker's
// custom fields.
func (c *Client) Create(ctx context.Context, projectKey string, issue models.NormalizedIssue) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.New(errs.Cancelled, service, "cancelled before create")
	}

	fields := &jira.IssueFields{
		Project: jira.Project{Key: projectKey},
		Summary: issue.Title,
		Type:    jira.IssueType{Name: "Issue"},
		Unknowns: map[string]interface{}{
			fieldIssueID:    issue.IssueID,
			fieldIssueType:  string(issue.SourceKind),
			fieldSDK:        issue.SDK,
			fieldRepository: issue.Repository,
			fieldIssueURL:   issue.URL,
		},
	}
	if issue.Tags != "" {
		fields.Labels = []string{issue.Tags}
	}

	jiraIssue := &jira.Issue{Fields: fields}
	created, resp, err := c.client.Issue.CreateWithContext(ctx, jiraIssue)
	if err != nil {
		return "", classifyErr(resp, err, fmt.Sprintf("create work item for issue %q failed", issue.IssueID))
	}
	return created.ID, nil
}

// Validate issues a minimal authenticated call against the tracker,
// matching "GET /_apis/projects?$top=1" shape.
func (c *Client) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, "rest/api/2/project", nil)
	if err != nil {
		return errs.Wrap(errs.Internal, service, "failed to build validate request", err)
	}

	resp, err := c.client.Do(req, nil)
	if err != nil {
		return classifyErr(resp, err, "tracker validation failed")
	}
	return nil
}

func classifyErr(resp *jira.Response, err error, message string) error {
	if resp == nil || resp.Response == nil {
		return errs.Wrap(errs.UpstreamUnavailable, service, message, err)
	}
	return errs.Wrap(errs.ClassifyHTTPStatus(resp.StatusCode), service, message, err)
}
