package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/stevkan/support-tracker/internal/api"
	"github.com/stevkan/support-tracker/internal/config"
	"github.com/stevkan/support-tracker/internal/credentials"
	"github.com/stevkan/support-tracker/internal/logging"
	"github.com/stevkan/support-tracker/internal/qainternal"
	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/reconciler"
	"github.com/stevkan/support-tracker/internal/scheduler"
	"github.com/stevkan/support-tracker/internal/scm"
	"github.com/stevkan/support-tracker/internal/secrets"
	"github.com/stevkan/support-tracker/internal/store"
	"github.com/stevkan/support-tracker/internal/tracker"
)

const appName = "support-tracker"

// appDataDir returns (and creates) ~/.support-tracker, the home for the
// settings document, the run snapshot, and the per-job trace logs.
func appDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "."+appName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// seedSecretsFromEnv preloads the in-process secret store from the
// environment, so a deployment that injects credentials via env vars
// (rather than PUT /api/secrets/:key) works without an extra API call.
func seedSecretsFromEnv(cfg *config.Config, s secrets.Store) {
	if cfg.Tracker.Username != "" {
		_ = s.Set(secrets.KeyTrackerUsername, cfg.Tracker.Username)
	}
	if cfg.Tracker.Token != "" {
		_ = s.Set(secrets.KeyTrackerPAT, cfg.Tracker.Token)
	}
	if cfg.SCM.Token != "" {
		_ = s.Set(secrets.KeySCMToken, cfg.SCM.Token)
	}
	if cfg.QAInternal.APIKey != "" {
		_ = s.Set(secrets.KeyQAInternalAPIKey, cfg.QAInternal.APIKey)
	}
}

// buildSources wires concrete upstream clients from the current settings
// document and secret store into the scheduler's function-typed Sources,
// so each job run picks up whatever is configured at job-start time.
func buildSources(cfg *config.Config, settings store.Settings, secretStore secrets.Store) scheduler.Sources {
	username, _ := secretStore.Get(secrets.KeyTrackerUsername)
	trackerToken, _ := secretStore.Get(secrets.KeyTrackerPAT)
	scmToken, _ := secretStore.Get(secrets.KeySCMToken)
	qaInternalKey, _ := secretStore.Get(secrets.KeyQAInternalAPIKey)

	trackerBaseURL := cfg.Tracker.BaseURL
	if settings.AzureDevOps.Org != "" {
		trackerBaseURL = settings.AzureDevOps.Org
	}

	var trk *tracker.Client
	if trackerBaseURL != "" && trackerToken != "" {
		c, err := tracker.NewClient(trackerBaseURL, username, trackerToken)
		if err != nil {
			logging.Error("failed to build tracker client", "error", err)
		} else {
			trk = c
		}
	}

	var qaPub *qapublic.Client
	if settings.EnabledService.QAPublic {
		qaPub = qapublic.NewClient(cfg.QAPublic.Site)
	}

	var qaInt *qainternal.Client
	if settings.EnabledService.QAInternal && cfg.QAInternal.BaseURL != "" {
		qaInt = qainternal.NewClient(cfg.QAInternal.BaseURL, qaInternalKey)
	}

	var scmClient *scm.Client
	if settings.EnabledService.SCMIssues && cfg.SCM.Domain != "" {
		scmClient = scm.NewClient(cfg.SCM.Domain, scmToken)
	}

	sources := scheduler.Sources{
		Validator: &credentials.Validator{
			Tracker:    trk,
			QAPublic:   qaPub,
			QAInternal: qaInt,
			SCM:        scmClient,
		},
	}

	if qaPub != nil {
		sources.QAPublic = func(ctx context.Context, tags []string, since time.Time, opts reconciler.Options, progress reconciler.ProgressFunc) *reconciler.Result {
			return reconciler.ReconcileQAPublic(ctx, qaPub, trk, cfg.QAPublic.Site, tags, since, opts, progress)
		}
	}
	if qaInt != nil {
		sources.QAInternal = func(ctx context.Context, tags []string, since time.Time, opts reconciler.Options, progress reconciler.ProgressFunc) *reconciler.Result {
			return reconciler.ReconcileQAInternal(ctx, qaInt, trk, cfg.QAInternal.BaseURL, tags, since, opts, progress)
		}
	}
	if scmClient != nil {
		sources.SCM = func(ctx context.Context, repos []reconciler.RepoSpec, since time.Time, opts reconciler.Options, progress reconciler.ProgressFunc) *reconciler.Result {
			return reconciler.ReconcileSCM(ctx, scmClient, trk, repos, since, opts, progress)
		}
	}

	return sources
}

// buildServer assembles the control-plane Server from the environment
// config and the on-disk settings/snapshot documents.
func buildServer() (*api.Server, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	dataDir, err := appDataDir()
	if err != nil {
		return nil, err
	}

	secretStore := secrets.NewMemguardStore()
	seedSecretsFromEnv(cfg, secretStore)

	settingsStore := store.NewSettingsStore(filepath.Join(dataDir, "settings.json"))
	snapshotStore := store.NewSnapshotStore(filepath.Join(dataDir, "index.json"))

	return &api.Server{
		Scheduler: scheduler.New(snapshotStore, appName),
		Settings:  settingsStore,
		Secrets:   secretStore,
		AppName:   appName,
		NewSources: func(settings store.Settings, secretStore secrets.Store) scheduler.Sources {
			return buildSources(cfg, settings, secretStore)
		},
	}, nil
}
