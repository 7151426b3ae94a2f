// Package joblog persists a per-job trace of reconciler state transitions
// to disk, one file per job id under ~/.<app>/logs, so a job's trace can
// be fetched in isolation by GET /api/queries/:id/logs.
package joblog

import (
	"log"
	"os"
	"path/filepath"
)

// Recorder appends timestamped trace lines for a single job to a file on
// disk. It is intentionally append-only and best-effort: a failure to
// open or write the file never fails the reconciler run it is tracing.
type Recorder struct {
	jobID  string
	logger *log.Logger
	file   *os.File
}

// NewRecorder creates (or appends to) the trace file for jobID under
// ~/.support-tracker/logs/<jobID>.log. If the file cannot be opened, the
// returned Recorder silently discards writes rather than failing the job.
func NewRecorder(appName, jobID string) *Recorder {
	r := &Recorder{jobID: jobID}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return r
	}

	logsDir := filepath.Join(homeDir, "."+appName, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return r
	}

	path := filepath.Join(logsDir, jobID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return r
	}

	r.file = f
	r.logger = log.New(f, "", log.LstdFlags)
	return r
}

// Trace records that a reconciler for the given source entered state at
// the current time. Safe to call on a nil Recorder.
func (r *Recorder) Trace(source, state, detail string) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf("job=%s source=%s state=%s %s", r.jobID, source, state, detail)
}

// Close releases the underlying file handle. Safe to call on a nil Recorder.
func (r *Recorder) Close() {
	if r == nil || r.file == nil {
		return
	}
	_ = r.file.Close()
}

// Tail reads the last n lines of jobID's trace file, for the
// GET /api/queries/:id/logs handler. Returns nil (not an
// error) if the file does not exist, since most jobs will have no
// persisted trace yet.
func Tail(appName, jobID string, n int) []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(homeDir, "."+appName, "logs", jobID+".log")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	lines := splitLines(string(data))
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
