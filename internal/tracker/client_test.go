package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stevkan/support-tracker/internal/errs"
	"github.com/stevkan/support-tracker/pkg/models"
)

func TestSearchByIssueIDReturnsHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issues":[{"id":"1","key":"ISS-1","fields":{"summary":"Existing"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "user", "token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ids, err := c.SearchByIssueID(context.Background(), "999")
	if err != nil {
		t.Fatalf("SearchByIssueID: %v", err)
	}
	if len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestSearchByIssueIDNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issues":[]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "user", "token")
	ids, err := c.SearchByIssueID(context.Background(), "123")
	if err != nil {
		t.Fatalf("SearchByIssueID: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no hits, got %v", ids)
	}
}

func TestGetByURLReturnsTitleForEqualityCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","fields":{"summary":"Existing","Custom.IssueID":"999"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "user", "token")
	detail, err := c.GetByURL(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetByURL: %v", err)
	}
	if detail.Title != "Existing" {
		t.Errorf("expected title Existing, got %q", detail.Title)
	}
}

func TestCreateSendsMappedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"42","key":"ISS-42"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "user", "token")
	issue := models.NormalizedIssue{
		IssueID:    "12345",
		SourceKind: models.SourceQAPublic,
		Title:      "T",
		SDK:        "(Unknown)",
		Repository: "",
		URL:        "https://stackoverflow.com/questions/12345",
	}

	id, err := c.Create(context.Background(), "PROJ", issue)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "42" {
		t.Errorf("expected id 42, got %q", id)
	}
}

func TestValidateAuthFailureClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "user", "bad-token")
	err := c.Validate(context.Background())
	if err == nil {
		t.Fatal("expected validate error")
	}
	if errs.KindOf(err) != errs.UpstreamAuth {
		t.Fatalf("expected UpstreamAuth, got %v", errs.KindOf(err))
	}
}
