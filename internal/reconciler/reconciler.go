// Package reconciler drives the per-source state machine: fetch ->
// normalize -> mirror-lookup -> classify -> create. It owns no upstream
// client of its own; each Reconcile* entrypoint is handed a thin client
// value, wraps it in a fetch function, and passes that to a shared
// free-function driver instead of using an inheritance hierarchy.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/stevkan/support-tracker/internal/errs"
	"github.com/stevkan/support-tracker/internal/normalizer"
	"github.com/stevkan/support-tracker/internal/qainternal"
	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/scm"
	"github.com/stevkan/support-tracker/internal/tracker"
	"github.com/stevkan/support-tracker/pkg/models"
)

// Status is one of the terminal reports a reconciler run can end in.
type Status string

const (
	StatusDone         Status = "DONE_EMPTY"
	StatusNothingToAdd Status = "DONE_NOTHING_TO_ADD"
	StatusReportOnly   Status = "DONE_REPORT_ONLY"
	StatusCreated      Status = "DONE_CREATED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
)

// Result is the outcome of one source's reconciliation run.
type Result struct {
	Snapshot   models.SourceSnapshot
	Status     Status
	HTTPStatus int
	Message    string
	Err        *errs.Error
}

// ProgressFunc is invoked before each upstream unit of work (a tag for
// Q&A, a repository for SCM).
type ProgressFunc func(unitName string)

// politeness delays.
const (
	sleepQAPublic   = 1500 * time.Millisecond
	sleepQAInternal = 1000 * time.Millisecond
	sleepSCM        = 300 * time.Millisecond
)

// RepoSpec names one (org, repo, label) unit the SCM reconciler polls.
type RepoSpec struct {
	Org   string
	Repo  string
	Label string
}

// Options carries the tracker-facing knobs shared by all three
// reconcilers: whether to actually create work items, and which
// tracker project new items are filed under.
type Options struct {
	PushToTracker bool
	ProjectKey    string
}

// ReconcileQAPublic runs the public Q&A state machine: fetch each tag,
// normalize, look up/classify against the tracker, and optionally
// create work items for genuinely new issues.
func ReconcileQAPublic(ctx context.Context, client *qapublic.Client, trk *tracker.Client, site string, tags []string, since time.Time, opts Options, progress ProgressFunc) *Result {
	fetch := func(ctx context.Context, tag string) ([]models.NormalizedIssue, error) {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		time.Sleep(sleepQAPublic)
		questions, err := client.Fetch(ctx, tag, since)
		if err != nil {
			return nil, err
		}
		return normalizer.NormalizeQAPublic(site, questions), nil
	}
	return run(ctx, models.SourceQAPublic, tags, fetch, tagName, trk, opts, progress, "posts")
}

// ReconcileQAInternal runs the internal Q&A state machine, identical in
// shape to the public one but against the internal client/host.
func ReconcileQAInternal(ctx context.Context, client *qainternal.Client, trk *tracker.Client, internalHost string, tags []string, since time.Time, opts Options, progress ProgressFunc) *Result {
	fetch := func(ctx context.Context, tag string) ([]models.NormalizedIssue, error) {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		time.Sleep(sleepQAInternal)
		questions, err := client.Fetch(ctx, tag, since)
		if err != nil {
			return nil, err
		}
		return normalizer.NormalizeQAInternal(internalHost, questions), nil
	}
	return run(ctx, models.SourceQAInternal, tags, fetch, tagName, trk, opts, progress, "posts")
}

// ReconcileSCM runs the SCM issues state machine over a list of
// (org, repo, label) units.
func ReconcileSCM(ctx context.Context, client *scm.Client, trk *tracker.Client, repos []RepoSpec, since time.Time, opts Options, progress ProgressFunc) *Result {
	fetch := func(ctx context.Context, repoSpec RepoSpec) ([]models.NormalizedIssue, error) {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		time.Sleep(sleepSCM)
		issues, err := client.Fetch(ctx, repoSpec.Org, repoSpec.Repo, repoSpec.Label, since)
		if err != nil {
			return nil, err
		}
		return normalizer.NormalizeSCM(issues, repoSpec.Label, since), nil
	}
	return run(ctx, models.SourceSCMIssues, repos, fetch, repoName, trk, opts, progress, "issues")
}

func tagName(tag string) string { return tag }

func repoName(r RepoSpec) string { return fmt.Sprintf("%s/%s", r.Org, r.Repo) }

// run is the shared FETCH -> NORMALIZE -> LOOKUP -> CREATE driver; unit
// is whatever the caller iterates over (a tag string or a RepoSpec).
func run[U any](
	ctx context.Context,
	source models.SourceKind,
	units []U,
	fetch func(context.Context, U) ([]models.NormalizedIssue, error),
	name func(U) string,
	trk *tracker.Client,
	opts Options,
	progress ProgressFunc,
	noun string,
) *Result {
	now := time.Now()
	snapshot := models.NewEmptySourceSnapshot(now)

	var all []models.NormalizedIssue
	for _, u := range units {
		if progress != nil {
			progress(name(u))
		}
		found, err := fetch(ctx, u)
		if err != nil {
			if errs.IsCancelled(err) {
				return &Result{Snapshot: snapshot, Status: StatusCancelled}
			}
			return failResult(snapshot, source, err)
		}
		all = append(all, found...)
	}

	all = normalizer.Dedup(all)
	if len(all) == 0 {
		return &Result{
			Snapshot:   snapshot,
			Status:     StatusDone,
			HTTPStatus: 204,
			Message:    fmt.Sprintf("No new %s found.", noun),
		}
	}

	snapshot.Found = models.IssueSection{Issues: all, Count: len(all)}

	var devOps []models.MirrorCandidate
	var newIssues []models.NormalizedIssue

	for _, issue := range all {
		if err := checkpoint(ctx); err != nil {
			return &Result{Snapshot: snapshot, Status: StatusCancelled}
		}

		hitIDs, err := trk.SearchByIssueID(ctx, issue.IssueID)
		if err != nil {
			if errs.IsCancelled(err) {
				return &Result{Snapshot: snapshot, Status: StatusCancelled}
			}
			return failResult(snapshot, source, err)
		}

		if len(hitIDs) == 0 {
			newIssues = append(newIssues, issue)
			continue
		}

		detail, err := trk.GetByURL(ctx, hitIDs[0])
		if err != nil {
			if errs.IsCancelled(err) {
				return &Result{Snapshot: snapshot, Status: StatusCancelled}
			}
			return failResult(snapshot, source, err)
		}

		devOps = append(devOps, models.MirrorCandidate{
			WorkItemID:   detail.WorkItemID,
			Title:        detail.Title,
			URLInTracker: hitIDs[0],
			IssueID:      issue.IssueID,
			URL:          issue.URL,
		})

		// invariant: title equality (case-sensitive) is the only thing
		// that suppresses a create; a tracker hit with a different title
		// is *also* treated as a new issue.
		if detail.Title != issue.Title {
			newIssues = append(newIssues, issue)
		}
	}

	snapshot.DevOps = devOps

	if len(newIssues) == 0 {
		return &Result{
			Snapshot:   snapshot,
			Status:     StatusNothingToAdd,
			HTTPStatus: 204,
			Message:    fmt.Sprintf("No new %s to add", noun),
		}
	}

	snapshot.NewIssues = models.IssueSection{Issues: newIssues, Count: len(newIssues)}

	if !opts.PushToTracker {
		return &Result{
			Snapshot:   snapshot,
			Status:     StatusReportOnly,
			HTTPStatus: 200,
			Message:    fmt.Sprintf("%d new issue(s) found but not pushed", len(newIssues)),
		}
	}

	var lastCreatedID string
	for _, issue := range newIssues {
		if err := checkpoint(ctx); err != nil {
			return &Result{Snapshot: snapshot, Status: StatusCancelled}
		}

		id, err := trk.Create(ctx, opts.ProjectKey, issue)
		if err != nil {
			if errs.IsCancelled(err) {
				return &Result{Snapshot: snapshot, Status: StatusCancelled}
			}
			return failResult(snapshot, source, err)
		}
		lastCreatedID = id
	}

	return &Result{
		Snapshot:   snapshot,
		Status:     StatusCreated,
		HTTPStatus: 200,
		Message:    fmt.Sprintf("created work item %s", lastCreatedID),
	}
}

// checkpoint observes the cancellation token at a suspension-point
// boundary.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.New(errs.Cancelled, "", "cancelled at checkpoint")
	}
	return nil
}

// failResult wraps an upstream failure into a terminal FAILED result.
// Tracker-originated errors stay attributed to the tracker service even
// when raised from within a Q&A or SCM reconciler — errs.Wrap already
// carries the correct Service from the client that raised it, so this
// only needs to pass it through.
func failResult(snapshot models.SourceSnapshot, source models.SourceKind, err error) *Result {
	var svcErr *errs.Error
	if e, ok := err.(*errs.Error); ok {
		svcErr = e
	} else {
		svcErr = errs.Wrap(errs.Internal, string(source), "unexpected error", err)
	}
	return &Result{Snapshot: snapshot, Status: StatusFailed, Err: svcErr, Message: svcErr.Error()}
}
