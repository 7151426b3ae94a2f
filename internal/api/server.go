// Package api implements the control-plane HTTP façade: a stateless,
// gorilla/mux-routed JSON surface over the scheduler, settings/secrets
// stores, and the per-upstream validate endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/stevkan/support-tracker/internal/joblog"
	"github.com/stevkan/support-tracker/internal/logging"
	"github.com/stevkan/support-tracker/internal/qainternal"
	"github.com/stevkan/support-tracker/internal/reconciler"
	"github.com/stevkan/support-tracker/internal/scheduler"
	"github.com/stevkan/support-tracker/internal/scm"
	"github.com/stevkan/support-tracker/internal/secrets"
	"github.com/stevkan/support-tracker/internal/store"
	"github.com/stevkan/support-tracker/internal/tracker"
	"github.com/stevkan/support-tracker/pkg/models"
)

// Server bundles the collaborators the control plane fronts.
type Server struct {
	Scheduler *scheduler.Scheduler
	Settings  *store.SettingsStore
	Secrets   secrets.Store
	AppName   string

	// NewSources builds the per-job upstream clients from the current
	// settings/secrets; injected so tests can fake it without a real
	// network.
	NewSources func(settings store.Settings, secretStore secrets.Store) scheduler.Sources
}

// Router builds the full mux.Router for the control plane.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLoggingMiddleware)

	r.HandleFunc("/api/healthz", s.handleHealthz).Methods(http.MethodGet)

	r.HandleFunc("/api/settings", s.handleSettingsGet).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleSettingsPatch).Methods(http.MethodPatch)

	r.HandleFunc("/api/secrets/check", s.handleSecretsCheck).Methods(http.MethodPost)
	r.HandleFunc("/api/secrets/{key}", s.handleSecretGet).Methods(http.MethodGet)
	r.HandleFunc("/api/secrets/{key}", s.handleSecretPut).Methods(http.MethodPut)
	r.HandleFunc("/api/secrets/{key}", s.handleSecretDelete).Methods(http.MethodDelete)

	r.HandleFunc("/api/queries", s.handleQueriesStart).Methods(http.MethodPost)
	r.HandleFunc("/api/queries", s.handleQueriesList).Methods(http.MethodGet)
	r.HandleFunc("/api/queries/{id}", s.handleQueryGet).Methods(http.MethodGet)
	r.HandleFunc("/api/queries/{id}/cancel", s.handleQueryCancel).Methods(http.MethodPost)
	r.HandleFunc("/api/queries/{id}/logs", s.handleQueryLogs).Methods(http.MethodGet)

	r.HandleFunc("/api/validate/tracker", s.handleValidateTracker).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/api/validate/scm", s.handleValidateSCM).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/api/validate/qa-internal", s.handleValidateQAInternal).Methods(http.MethodPost, http.MethodGet)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Settings.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSettingsPatch(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
		return
	}

	updated, err := s.Settings.Update(func(current *store.Settings) {
		applySettingsPatch(current, patch)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func applySettingsPatch(current *store.Settings, patch map[string]json.RawMessage) {
	if raw, ok := patch["theme"]; ok {
		_ = json.Unmarshal(raw, &current.Theme)
	}
	if raw, ok := patch["useTestData"]; ok {
		_ = json.Unmarshal(raw, &current.UseTestData)
	}
	if raw, ok := patch["isVerbose"]; ok {
		_ = json.Unmarshal(raw, &current.IsVerbose)
	}
	if raw, ok := patch["pushToDevOps"]; ok {
		_ = json.Unmarshal(raw, &current.PushToDevOps)
	}
	if raw, ok := patch["enabledServices"]; ok {
		_ = json.Unmarshal(raw, &current.EnabledService)
	}
	if raw, ok := patch["queryDefaults"]; ok {
		_ = json.Unmarshal(raw, &current.QueryDefaults)
	}
	if raw, ok := patch["azureDevOps"]; ok {
		_ = json.Unmarshal(raw, &current.AzureDevOps)
	}
	if raw, ok := patch["github"]; ok {
		_ = json.Unmarshal(raw, &current.GitHub)
	}
	if raw, ok := patch["repositories"]; ok {
		_ = json.Unmarshal(raw, &current.Repositories)
	}
}

func (s *Server) handleSecretsCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
		return
	}

	keys := make([]secrets.Key, 0, len(body.Keys))
	for _, k := range body.Keys {
		keys = append(keys, secrets.Key(k))
	}

	result := secrets.Check(s.Secrets, keys)
	out := make(map[string]bool, len(result))
	for k, v := range result {
		out[string(k)] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSecretGet(w http.ResponseWriter, r *http.Request) {
	key := secrets.Key(mux.Vars(r)["key"])
	if !secrets.ValidKeys[key] {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown_key"})
		return
	}

	value, ok := s.Secrets.Get(key)
	resp := map[string]any{"hasValue": ok}
	if ok && r.URL.Query().Get("reveal") == "true" {
		resp["value"] = value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSecretPut(w http.ResponseWriter, r *http.Request) {
	key := secrets.Key(mux.Vars(r)["key"])
	if !secrets.ValidKeys[key] {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown_key"})
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
		return
	}

	if err := s.Secrets.Set(key, body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSecretDelete(w http.ResponseWriter, r *http.Request) {
	key := secrets.Key(mux.Vars(r)["key"])
	_ = s.Secrets.Delete(key)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleQueriesStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EnabledServices models.EnabledSources `json:"enabledServices"`
		Params          models.QueryParams    `json:"params"`
	}
	body.EnabledServices = models.DefaultEnabledSources()
	body.Params = models.DefaultQueryParams()

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
			return
		}
	}

	settings, err := s.Settings.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sources := s.NewSources(settings, s.Secrets)
	jobID := s.Scheduler.Start(sources, scheduler.StartRequest{
		Enabled:    body.EnabledServices,
		Params:     body.Params,
		Tags:       settings.Repositories.StackOverflow,
		Repos:      repoSpecs(settings.Repositories.GitHub, settings.Repositories.Label),
		ProjectKey: settings.AzureDevOps.Project,
	})

	writeJSON(w, http.StatusOK, map[string]any{"jobId": jobID})
}

// repoSpecs turns "org/repo" settings strings into the reconciler's
// RepoSpec list, all sharing the one configured SCM label.
func repoSpecs(repos []string, label string) []reconciler.RepoSpec {
	out := make([]reconciler.RepoSpec, 0, len(repos))
	for _, full := range repos {
		org, repo, ok := strings.Cut(full, "/")
		if !ok {
			continue
		}
		out = append(out, reconciler.RepoSpec{Org: org, Repo: repo, Label: label})
	}
	return out
}

func (s *Server) handleQueriesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Scheduler.List())
}

func (s *Server) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.Scheduler.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQueryCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	switch s.Scheduler.Cancel(id) {
	case scheduler.CancelOK:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case scheduler.CancelNotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
	case scheduler.CancelAlreadyTerminated:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "already_terminated"})
	}
}

func (s *Server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lines := joblog.Tail(s.AppName, id, 200)
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleValidateTracker(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Settings.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	username, _ := s.Secrets.Get(secrets.KeyTrackerUsername)
	token, _ := s.Secrets.Get(secrets.KeyTrackerPAT)

	trk, err := tracker.NewClient(settings.AzureDevOps.Org, username, token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := trk.Validate(ctx); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleValidateSCM(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Settings.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	token, _ := s.Secrets.Get(secrets.KeySCMToken)

	client := scm.NewClient(settings.GitHub.APIURL, token)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := client.Validate(ctx); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleValidateQAInternal(w http.ResponseWriter, r *http.Request) {
	apiKey, _ := s.Secrets.Get(secrets.KeyQAInternalAPIKey)
	settings, err := s.Settings.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	client := qainternal.NewClient(settings.GitHub.APIURL, apiKey)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := client.Validate(ctx); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logging.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
