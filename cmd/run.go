package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevkan/support-tracker/internal/config"
	"github.com/stevkan/support-tracker/internal/reconciler"
	"github.com/stevkan/support-tracker/internal/scheduler"
	"github.com/stevkan/support-tracker/internal/secrets"
	"github.com/stevkan/support-tracker/internal/store"
	"github.com/stevkan/support-tracker/pkg/models"
)

var (
	runDays          uint16
	runStartHour     uint8
	runPushToTracker bool
	runNoWait        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass and print the result",
	Long: `run starts a single job against the sources enabled in the settings
document (or their defaults, if none has been written yet), waits for it
to finish, and prints the resulting Run Snapshot as JSON.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().Uint16Var(&runDays, "days", 1, "number of days back to query")
	runCmd.Flags().Uint8Var(&runStartHour, "start-hour", 10, "local hour to anchor the query window")
	runCmd.Flags().BoolVar(&runPushToTracker, "push", true, "create matching work items for new issues")
	runCmd.Flags().BoolVar(&runNoWait, "no-wait", false, "print the job id and return immediately instead of waiting")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	dataDir, err := appDataDir()
	if err != nil {
		return err
	}

	secretStore := secrets.NewMemguardStore()
	seedSecretsFromEnv(cfg, secretStore)

	settingsStore := store.NewSettingsStore(filepath.Join(dataDir, "settings.json"))
	snapshotStore := store.NewSnapshotStore(filepath.Join(dataDir, "index.json"))

	settings, err := settingsStore.Get()
	if err != nil {
		return err
	}

	sched := scheduler.New(snapshotStore, appName)
	sources := buildSources(cfg, settings, secretStore)

	jobID := sched.Start(sources, scheduler.StartRequest{
		Enabled:    settings.EnabledService,
		Params:     models.QueryParams{NumberOfDaysToQuery: runDays, StartHour: runStartHour, PushToTracker: runPushToTracker},
		Tags:       settings.Repositories.StackOverflow,
		Repos:      reposFromSettings(settings),
		ProjectKey: settings.AzureDevOps.Project,
	})

	if runNoWait {
		fmt.Println(jobID)
		return nil
	}

	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		job, ok := sched.Get(jobID)
		if !ok {
			return fmt.Errorf("run: job %s vanished", jobID)
		}
		if job.Status != models.JobRunning {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(job); err != nil {
				return err
			}
			if job.Status == models.JobError || len(job.ServiceErrors) > 0 {
				os.Exit(1)
			}
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("run: job %s did not finish within the wait deadline", jobID)
}

func reposFromSettings(settings store.Settings) []reconciler.RepoSpec {
	out := make([]reconciler.RepoSpec, 0, len(settings.Repositories.GitHub))
	for _, full := range settings.Repositories.GitHub {
		org, repo, ok := strings.Cut(full, "/")
		if !ok {
			continue
		}
		out = append(out, reconciler.RepoSpec{Org: org, Repo: repo, Label: settings.Repositories.Label})
	}
	return out
}
