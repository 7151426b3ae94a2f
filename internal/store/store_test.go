package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stevkan/support-tracker/pkg/models"
)

func TestSettingsStoreDefaultsWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewSettingsStore(path)

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.EnabledService.QAPublic {
		t.Errorf("expected default qa_public enabled, got %+v", got.EnabledService)
	}
}

func TestSettingsStoreUpdateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewSettingsStore(path)

	_, err := s.Update(func(settings *Settings) {
		settings.Theme = "dark"
		settings.PushToDevOps = false
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Theme != "dark" || got.PushToDevOps {
		t.Errorf("expected update to persist, got %+v", got)
	}
}

func TestSnapshotStoreResetThenUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	s := NewSnapshotStore(path)

	empty := models.NewEmptyRunSnapshot(time.Now())
	if err := s.Reset(empty); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	_, err := s.Update(func(snap *models.RunSnapshot) {
		snap.StackOverflow.Found.Count = 3
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StackOverflow.Found.Count != 3 {
		t.Errorf("expected found.count 3, got %d", got.StackOverflow.Found.Count)
	}
}

func TestSnapshotStoreGetOnAbsentFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s := NewSnapshotStore(path)

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StackOverflow.Found.Count != 0 {
		t.Errorf("expected zeroed snapshot, got %+v", got)
	}
}
