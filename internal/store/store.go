// Package store implements the atomic read-modify-write documents the
// control plane owns: the Settings Document and the Run Snapshot (Result
// Store). Both use the same temp-file-then-rename idiom — full-file
// replace is sufficient at this workload's scale.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevkan/support-tracker/pkg/models"
)

// AzureDevOpsSettings mirrors the settings document's azureDevOps section.
type AzureDevOpsSettings struct {
	Org        string `json:"org"`
	Project    string `json:"project"`
	APIVersion string `json:"apiVersion"`
}

// GitHubSettings mirrors the settings document's github section.
type GitHubSettings struct {
	APIURL string `json:"apiUrl"`
}

// RepositorySettings mirrors the settings document's repositories
// section. GitHub entries are "org/repo" strings; Label is the single
// SCM label queried across all of them.
type RepositorySettings struct {
	GitHub                []string `json:"github"`
	StackOverflow         []string `json:"stackOverflow"`
	InternalStackOverflow []string `json:"internalStackOverflow"`
	Label                 string   `json:"label"`
}

// TimestampSettings mirrors the settings document's timestamp section.
type TimestampSettings struct {
	LastRun     string `json:"lastRun"`
	PreviousRun string `json:"previousRun"`
}

// Settings is the full Settings Document shape.
type Settings struct {
	AzureDevOps    AzureDevOpsSettings  `json:"azureDevOps"`
	GitHub         GitHubSettings       `json:"github"`
	UseTestData    bool                 `json:"useTestData"`
	IsVerbose      bool                 `json:"isVerbose"`
	EnabledService models.EnabledSources `json:"enabledServices"`
	QueryDefaults  models.QueryParams   `json:"queryDefaults"`
	PushToDevOps   bool                 `json:"pushToDevOps"`
	Repositories   RepositorySettings   `json:"repositories"`
	Timestamp      TimestampSettings    `json:"timestamp"`
	Theme          string               `json:"theme"`
}

// DefaultSettings is the document written the first time a settings
// file doesn't exist yet.
func DefaultSettings() Settings {
	return Settings{
		EnabledService: models.DefaultEnabledSources(),
		QueryDefaults:  models.DefaultQueryParams(),
		PushToDevOps:   true,
		Theme:          "light",
	}
}

// SettingsStore guards the on-disk settings document behind a mutex,
// per : "mutated only from ... HTTP handlers; serialize access".
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

// NewSettingsStore opens (or lazily creates, on first Get) the settings
// document at path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Get reads the current settings document, returning DefaultSettings
// if none has been written yet.
func (s *SettingsStore) Get() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Update applies mutate to the current settings and writes the result
// back atomically, matching PATCH /api/settings's partial-update shape.
func (s *SettingsStore) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked()
	if err != nil {
		return Settings{}, err
	}
	mutate(&current)

	if err := atomicWriteJSON(s.path, current); err != nil {
		return Settings{}, err
	}
	return current, nil
}

func (s *SettingsStore) readLocked() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: failed to read settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("store: failed to parse settings: %w", err)
	}
	return settings, nil
}

// SnapshotStore guards the on-disk Run Snapshot document, keyed at the
// top level by "index".
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore opens the Run Snapshot document at path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

type snapshotDocument struct {
	Index models.RunSnapshot `json:"index"`
}

// Reset overwrites the document with the canonical empty template,
// which happens at the start of every run.
func (s *SnapshotStore) Reset(snapshot models.RunSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWriteJSON(s.path, snapshotDocument{Index: snapshot})
}

// Update applies mutate to the current snapshot and writes the result
// back atomically, for the point-path updates describes
// (update("index.<key>.found.count", n) and friends).
func (s *SnapshotStore) Update(mutate func(*models.RunSnapshot)) (models.RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	var doc snapshotDocument
	if err == nil {
		if jerr := json.Unmarshal(data, &doc); jerr != nil {
			return models.RunSnapshot{}, fmt.Errorf("store: failed to parse snapshot: %w", jerr)
		}
	} else if !os.IsNotExist(err) {
		return models.RunSnapshot{}, fmt.Errorf("store: failed to read snapshot: %w", err)
	}

	mutate(&doc.Index)

	if err := atomicWriteJSON(s.path, doc); err != nil {
		return models.RunSnapshot{}, err
	}
	return doc.Index, nil
}

// Get reads the current Run Snapshot document.
func (s *SnapshotStore) Get() (models.RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return models.RunSnapshot{}, nil
	}
	if err != nil {
		return models.RunSnapshot{}, fmt.Errorf("store: failed to read snapshot: %w", err)
	}

	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.RunSnapshot{}, fmt.Errorf("store: failed to parse snapshot: %w", err)
	}
	return doc.Index, nil
}

// atomicWriteJSON marshals v and replaces path with it via the
// temp-file-then-rename idiom, so a reader never observes a partially
// written document.
func atomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: failed to encode document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("store: failed to write temp file: %w", werr)
		}
		return fmt.Errorf("store: failed to close temp file: %w", cerr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: failed to replace document: %w", err)
	}
	return nil
}
