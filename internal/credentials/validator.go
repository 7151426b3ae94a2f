// Package credentials implements the one-shot validation gate of :
// before any source is fetched, the enabled upstreams' credentials (and
// the work-item tracker's, when pushing is on and at least one source is
// enabled) are checked, short-circuiting the job on failure rather than
// letting it fail source-by-source.
package credentials

import (
	"context"

	"github.com/stevkan/support-tracker/internal/errs"
	"github.com/stevkan/support-tracker/internal/qainternal"
	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/scm"
	"github.com/stevkan/support-tracker/internal/tracker"
	"github.com/stevkan/support-tracker/pkg/models"
)

// Validator groups the client handles credential validation needs;
// a nil client for a source means that source is disabled and is
// skipped.
type Validator struct {
	Tracker    *tracker.Client
	QAPublic   *qapublic.Client
	QAInternal *qainternal.Client
	SCM        *scm.Client
}

// Validate runs the work-item tracker check (only when pushToTracker is
// set and at least one source is enabled) and the check for each enabled
// source. It returns on the first failure, with the
// error already attributed to the correct service by the validated
// client.
func (v *Validator) Validate(ctx context.Context, enabled models.EnabledSources, pushToTracker bool) error {
	if pushToTracker && hasAnySource(enabled) {
		if err := v.Tracker.Validate(ctx); err != nil {
			return err
		}
	}

	if enabled.QAPublic && v.QAPublic != nil {
		if err := v.QAPublic.Validate(ctx); err != nil {
			return err
		}
	}
	if enabled.QAInternal && v.QAInternal != nil {
		if err := v.QAInternal.Validate(ctx); err != nil {
			return err
		}
	}
	if enabled.SCMIssues && v.SCM != nil {
		if err := v.SCM.Validate(ctx); err != nil {
			return err
		}
	}

	return nil
}

func hasAnySource(enabled models.EnabledSources) bool {
	return len(enabled.Enabled()) > 0
}

// AsServiceError converts a validation failure into the single
// service_errors entry specifies, attributed to whichever upstream
// actually rejected the credentials.
func AsServiceError(err error) models.ServiceError {
	return models.ServiceError{
		Service: errs.ServiceOf(err),
		Message: err.Error(),
	}
}
