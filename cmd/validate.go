package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevkan/support-tracker/internal/config"
	"github.com/stevkan/support-tracker/internal/credentials"
	"github.com/stevkan/support-tracker/internal/qainternal"
	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/scm"
	"github.com/stevkan/support-tracker/internal/tracker"
	"github.com/stevkan/support-tracker/pkg/models"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured upstream credentials",
	Long: `validate runs the same one-shot credential check the scheduler runs
before a job's first fetch: the work-item tracker, then every source whose
environment configuration is present. It reports the first rejection and
exits non-zero if any check fails.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	v := &credentials.Validator{}
	enabled := models.EnabledSources{}

	if cfg.Tracker.BaseURL != "" && cfg.Tracker.Token != "" {
		trk, err := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.Username, cfg.Tracker.Token)
		if err != nil {
			return fmt.Errorf("tracker: %w", err)
		}
		v.Tracker = trk
	}
	if cfg.QAPublic.Site != "" {
		v.QAPublic = qapublic.NewClient(cfg.QAPublic.Site)
		enabled.QAPublic = true
	}
	if cfg.QAInternal.BaseURL != "" {
		v.QAInternal = qainternal.NewClient(cfg.QAInternal.BaseURL, cfg.QAInternal.APIKey)
		enabled.QAInternal = true
	}
	if cfg.SCM.Domain != "" {
		v.SCM = scm.NewClient(cfg.SCM.Domain, cfg.SCM.Token)
		enabled.SCMIssues = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := v.Validate(ctx, enabled, v.Tracker != nil); err != nil {
		return fmt.Errorf("credential validation failed: %w", err)
	}

	fmt.Println("all configured credentials are valid")
	return nil
}
