// Package scheduler implements the job registry: it issues job ids,
// owns each job's cancellation token, runs the enabled sources'
// reconcilers in a fixed order, and answers start/get/cancel/list
// queries. Its in-process map trades durability for simplicity at the
// scale this service runs at.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevkan/support-tracker/internal/credentials"
	"github.com/stevkan/support-tracker/internal/joblog"
	"github.com/stevkan/support-tracker/internal/reconciler"
	"github.com/stevkan/support-tracker/internal/store"
	"github.com/stevkan/support-tracker/pkg/models"
)

// maxJobs and jobTTL bound the in-process registry so a long-running
// control plane can't accumulate terminated jobs forever.
const (
	maxJobs = 500
	jobTTL  = 24 * time.Hour
)

// Job is the scheduler's full internal record for a running or
// terminated job; public() strips it to the wire shape GET /api/queries/:id returns.
type Job struct {
	ID            string
	Status        models.JobStatus
	Progress      models.Progress
	ServiceErrors []models.ServiceError
	Result        *models.RunSnapshot
	ErrorMessage  string
	StartEpochMs  int64
	cancel        context.CancelFunc
	doneAt        time.Time
}

// Public is the {status, result, error, progress, elapsedTime} shape
// GET /api/queries/:id returns.
type Public struct {
	ID            string                 `json:"id"`
	Status        models.JobStatus       `json:"status"`
	Progress      models.Progress        `json:"progress"`
	Result        *models.RunSnapshot    `json:"result"`
	Error         string                 `json:"error,omitempty"`
	ServiceErrors []models.ServiceError  `json:"serviceErrors"`
	ElapsedMs     int64                  `json:"elapsedTime"`
}

// Sources groups the per-source C1 clients a job may use; nil entries
// mean the corresponding source has no configured client and must stay
// disabled.
type Sources struct {
	Validator  *credentials.Validator
	QAPublic   reconcileQAPublicFn
	QAInternal reconcileQAInternalFn
	SCM        reconcileSCMFn
}

type reconcileQAPublicFn func(ctx context.Context, tags []string, since time.Time, opts reconciler.Options, progress reconciler.ProgressFunc) *reconciler.Result
type reconcileQAInternalFn func(ctx context.Context, tags []string, since time.Time, opts reconciler.Options, progress reconciler.ProgressFunc) *reconciler.Result
type reconcileSCMFn func(ctx context.Context, repos []reconciler.RepoSpec, since time.Time, opts reconciler.Options, progress reconciler.ProgressFunc) *reconciler.Result

// StartRequest bundles what a job run needs beyond its Sources: which
// tags/repos to poll per source and the job-level query params.
type StartRequest struct {
	Enabled    models.EnabledSources
	Params     models.QueryParams
	Tags       []string
	Repos      []reconciler.RepoSpec
	ProjectKey string
}

// Scheduler owns the in-process job map.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	snapshot *store.SnapshotStore
	appName  string
}

// New builds a Scheduler backed by snapshotStore for persisting each
// job's Run Snapshot.
func New(snapshotStore *store.SnapshotStore, appName string) *Scheduler {
	return &Scheduler{
		jobs:     make(map[string]*Job),
		snapshot: snapshotStore,
		appName:  appName,
	}
}

// Start creates a job, records its cancel token, and runs it
// asynchronously, returning the job id immediately.
func (s *Scheduler) Start(sources Sources, req StartRequest) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	job := &Job{
		ID:           id,
		Status:       models.JobRunning,
		Progress:     models.Progress{Total: len(req.Enabled.Enabled())},
		StartEpochMs: time.Now().UnixMilli(),
		cancel:       cancel,
	}

	s.mu.Lock()
	s.evictLocked()
	s.jobs[id] = job
	s.mu.Unlock()

	go s.run(ctx, job, sources, req)

	return id
}

func (s *Scheduler) run(ctx context.Context, job *Job, sources Sources, req StartRequest) {
	recorder := joblog.NewRecorder(s.appName, job.ID)
	defer recorder.Close()

	defer func() {
		if r := recover(); r != nil {
			s.finish(job, models.JobError, fmt.Sprintf("panic: %v", r))
		}
	}()

	since := queryStart(time.Now(), req.Params)

	runSnapshot := models.NewEmptyRunSnapshot(since)
	if s.snapshot != nil {
		_ = s.snapshot.Reset(runSnapshot)
	}

	if sources.Validator != nil {
		if err := sources.Validator.Validate(ctx, req.Enabled, req.Params.PushToTracker); err != nil {
			recorder.Trace("tracker", "credential_validation_failed", err.Error())
			s.appendServiceError(job, credentials.AsServiceError(err))
			s.setResult(job, &runSnapshot)
			s.finish(job, models.JobCompleted, "")
			return
		}
	}

	opts := reconciler.Options{PushToTracker: req.Params.PushToTracker, ProjectKey: req.ProjectKey}

	for _, source := range req.Enabled.Enabled() {
		if ctx.Err() != nil {
			s.finish(job, models.JobCancelled, "")
			return
		}

		s.setCurrentService(job, string(source))
		recorder.Trace(string(source), "fetching", "starting reconciler")

		progress := func(unit string) {
			s.setCurrentService(job, unit)
			recorder.Trace(string(source), "fetching", unit)
		}

		var result *reconciler.Result
		switch source {
		case models.SourceQAPublic:
			if sources.QAPublic != nil {
				result = sources.QAPublic(ctx, req.Tags, since, opts, progress)
			}
		case models.SourceQAInternal:
			if sources.QAInternal != nil {
				result = sources.QAInternal(ctx, req.Tags, since, opts, progress)
			}
		case models.SourceSCMIssues:
			if sources.SCM != nil {
				result = sources.SCM(ctx, req.Repos, since, opts, progress)
			}
		}

		if result == nil {
			continue
		}

		recorder.Trace(string(source), string(result.Status), result.Message)

		if s.snapshot != nil {
			_, _ = s.snapshot.Update(func(snap *models.RunSnapshot) {
				*snap.SectionFor(source) = result.Snapshot
			})
		}

		if result.Status == reconciler.StatusCancelled {
			if s.snapshot != nil {
				if final, err := s.snapshot.Get(); err == nil {
					s.setResult(job, &final)
				}
			}
			s.finish(job, models.JobCancelled, "")
			return
		}
		if result.Status == reconciler.StatusFailed && result.Err != nil {
			s.appendServiceError(job, models.ServiceError{
				Service: result.Err.Service,
				Message: result.Err.Message,
			})
		}

		s.incrementProgress(job)
	}

	if s.snapshot != nil {
		if final, err := s.snapshot.Get(); err == nil {
			s.setResult(job, &final)
		}
	}

	s.finish(job, models.JobCompleted, "")
}

// Get returns the wire shape for job_id, or (nil, false) if unknown.
func (s *Scheduler) Get(jobID string) (Public, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return Public{}, false
	}
	return job.public(), true
}

// List returns all known jobs' wire shapes.
func (s *Scheduler) List() []Public {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Public, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.public())
	}
	return out
}

// CancelResult describes how a cancel request resolved.
type CancelResult int

const (
	CancelOK CancelResult = iota
	CancelNotFound
	CancelAlreadyTerminated
)

// Cancel signals job_id's token iff it is still running.
func (s *Scheduler) Cancel(jobID string) CancelResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return CancelNotFound
	}
	if job.Status != models.JobRunning {
		return CancelAlreadyTerminated
	}
	job.cancel()
	job.Status = models.JobCancelled
	job.doneAt = time.Now()
	return CancelOK
}

func (s *Scheduler) setCurrentService(job *Job, service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Progress.CurrentService = service
}

func (s *Scheduler) incrementProgress(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Progress.Current++
}

func (s *Scheduler) appendServiceError(job *Job, serviceErr models.ServiceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ServiceErrors = append(job.ServiceErrors, serviceErr)
}

func (s *Scheduler) setResult(job *Job, result *models.RunSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Result = result
}

func (s *Scheduler) finish(job *Job, status models.JobStatus, errMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Status != models.JobRunning {
		// Already cancelled by a concurrent Cancel() call; don't clobber it.
		return
	}
	job.Status = status
	job.ErrorMessage = errMessage
	job.doneAt = time.Now()
}

func (s *Scheduler) evictLocked() {
	if len(s.jobs) < maxJobs {
		return
	}
	now := time.Now()
	for id, job := range s.jobs {
		if job.Status != models.JobRunning && !job.doneAt.IsZero() && now.Sub(job.doneAt) > jobTTL {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) public() Public {
	elapsed := time.Since(time.UnixMilli(j.StartEpochMs)).Milliseconds()
	if !j.doneAt.IsZero() {
		elapsed = j.doneAt.UnixMilli() - j.StartEpochMs
	}
	return Public{
		ID:            j.ID,
		Status:        j.Status,
		Progress:      j.Progress,
		Result:        j.Result,
		Error:         j.ErrorMessage,
		ServiceErrors: j.ServiceErrors,
		ElapsedMs:     elapsed,
	}
}

// queryStart derives the upstream `fromdate`/`created:>` instant from
// job-start local time: NumberOfDaysToQuery days back, anchored at
// StartHour local, then converted to UTC.
func queryStart(now time.Time, params models.QueryParams) time.Time {
	local := now.Local()
	day := local.AddDate(0, 0, -int(params.NumberOfDaysToQuery))
	start := time.Date(day.Year(), day.Month(), day.Day(), int(params.StartHour), 0, 0, 0, local.Location())
	return start.UTC()
}
