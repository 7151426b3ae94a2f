package reconciler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/tracker"
)

func newTrackerServer(t *testing.T, searchBody, createBody string, createCalls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/2/search":
			w.Write([]byte(searchBody))
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/2/issue":
			if createCalls != nil {
				*createCalls++
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(createBody))
		default:
			w.Write([]byte(`{}`))
		}
	}))
}

func newQAPublicServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
}

// scenario 1: all empty
func TestReconcileQAPublicAllEmpty(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[]}`)
	defer qaSrv.Close()
	trkSrv := newTrackerServer(t, `{"issues":[]}`, `{"id":"1"}`, nil)
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	res := ReconcileQAPublic(context.Background(), client, trk, "stackoverflow", []string{"go"}, time.Now(), Options{PushToTracker: true, ProjectKey: "PROJ"}, nil)

	if res.Status != StatusDone {
		t.Fatalf("expected StatusDone, got %v (%s)", res.Status, res.Message)
	}
	if res.Snapshot.Found.Count != 0 {
		t.Errorf("expected found.count 0, got %d", res.Snapshot.Found.Count)
	}
}

// scenario 2: one new Q&A item, push on
func TestReconcileQAPublicOneNewItemCreated(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[{"question_id":12345,"title":"T","body":"B"}]}`)
	defer qaSrv.Close()

	var createCalls int
	trkSrv := newTrackerServer(t, `{"issues":[]}`, `{"id":"42"}`, &createCalls)
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	res := ReconcileQAPublic(context.Background(), client, trk, "stackoverflow", []string{"go"}, time.Now(), Options{PushToTracker: true, ProjectKey: "PROJ"}, nil)

	if res.Status != StatusCreated {
		t.Fatalf("expected StatusCreated, got %v (%s)", res.Status, res.Message)
	}
	if res.Snapshot.Found.Count != 1 {
		t.Errorf("expected found.count 1, got %d", res.Snapshot.Found.Count)
	}
	if res.Snapshot.NewIssues.Count != 1 {
		t.Errorf("expected newIssues.count 1, got %d", res.Snapshot.NewIssues.Count)
	}
	if createCalls != 1 {
		t.Errorf("expected exactly 1 create call, got %d", createCalls)
	}
}

// scenario 3: existing match suppresses create
func TestReconcileQAPublicExistingMatchSuppressesCreate(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[{"question_id":999,"title":"Existing","body":"B"}]}`)
	defer qaSrv.Close()

	var createCalls int
	search := `{"issues":[{"id":"1","key":"ISS-1","fields":{"summary":"Existing"}}]}`
	trkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/rest/api/2/search":
			w.Write([]byte(search))
		case r.URL.Path == "/rest/api/2/issue/1":
			w.Write([]byte(`{"id":"1","fields":{"summary":"Existing","Custom.IssueID":"999"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/2/issue":
			createCalls++
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"2"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	res := ReconcileQAPublic(context.Background(), client, trk, "stackoverflow", []string{"go"}, time.Now(), Options{PushToTracker: true, ProjectKey: "PROJ"}, nil)

	if res.Status != StatusNothingToAdd {
		t.Fatalf("expected StatusNothingToAdd, got %v (%s)", res.Status, res.Message)
	}
	if res.Snapshot.NewIssues.Count != 0 {
		t.Errorf("expected newIssues.count 0, got %d", res.Snapshot.NewIssues.Count)
	}
	if createCalls != 0 {
		t.Errorf("expected zero create calls, got %d", createCalls)
	}
}

// scenario 4: title drift triggers create despite a tracker hit
func TestReconcileQAPublicTitleDriftTriggersCreate(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[{"question_id":999,"title":"Existing","body":"B"}]}`)
	defer qaSrv.Close()

	var createCalls int
	search := `{"issues":[{"id":"1","key":"ISS-1","fields":{"summary":"Different"}}]}`
	trkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/rest/api/2/search":
			w.Write([]byte(search))
		case r.URL.Path == "/rest/api/2/issue/1":
			w.Write([]byte(`{"id":"1","fields":{"summary":"Different","Custom.IssueID":"999"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/2/issue":
			createCalls++
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"2"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	res := ReconcileQAPublic(context.Background(), client, trk, "stackoverflow", []string{"go"}, time.Now(), Options{PushToTracker: true, ProjectKey: "PROJ"}, nil)

	if res.Status != StatusCreated {
		t.Fatalf("expected StatusCreated, got %v (%s)", res.Status, res.Message)
	}
	if res.Snapshot.NewIssues.Count != 1 {
		t.Errorf("expected newIssues.count 1, got %d", res.Snapshot.NewIssues.Count)
	}
	if len(res.Snapshot.DevOps) != 1 {
		t.Errorf("expected devOps to retain the existing match, got %d", len(res.Snapshot.DevOps))
	}
	if createCalls != 1 {
		t.Errorf("expected exactly 1 create call, got %d", createCalls)
	}
}

// push disabled: zero creates regardless of new items
func TestReconcileQAPublicReportOnlyWhenPushDisabled(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[{"question_id":1,"title":"T","body":"B"}]}`)
	defer qaSrv.Close()

	var createCalls int
	trkSrv := newTrackerServer(t, `{"issues":[]}`, `{"id":"1"}`, &createCalls)
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	res := ReconcileQAPublic(context.Background(), client, trk, "stackoverflow", []string{"go"}, time.Now(), Options{PushToTracker: false, ProjectKey: "PROJ"}, nil)

	if res.Status != StatusReportOnly {
		t.Fatalf("expected StatusReportOnly, got %v (%s)", res.Status, res.Message)
	}
	if createCalls != 0 {
		t.Errorf("expected zero create calls when push disabled, got %d", createCalls)
	}
}

// scenario 6 variant: token already cancelled before the first fetch
func TestReconcileQAPublicCancellationStopsBeforeCreate(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[{"question_id":1,"title":"T","body":"B"}]}`)
	defer qaSrv.Close()

	var createCalls int
	trkSrv := newTrackerServer(t, `{"issues":[]}`, `{"id":"1"}`, &createCalls)
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := ReconcileQAPublic(ctx, client, trk, "stackoverflow", []string{"go"}, time.Now(), Options{PushToTracker: true, ProjectKey: "PROJ"}, nil)

	if res.Status != StatusCancelled {
		t.Fatalf("expected StatusCancelled, got %v (%s)", res.Status, res.Message)
	}
	if createCalls != 0 {
		t.Errorf("expected zero create calls after cancellation, got %d", createCalls)
	}
}

func TestReconcileQAPublicProgressCallbackInvokedPerTag(t *testing.T) {
	qaSrv := newQAPublicServer(t, `{"items":[]}`)
	defer qaSrv.Close()
	trkSrv := newTrackerServer(t, `{"issues":[]}`, `{"id":"1"}`, nil)
	defer trkSrv.Close()

	client := qapublic.NewClient("stackoverflow")
	client.SetBaseURL(qaSrv.URL)
	trk, _ := tracker.NewClient(trkSrv.URL, "user", "token")

	var seen []string
	ReconcileQAPublic(context.Background(), client, trk, "stackoverflow", []string{"go", "rust"}, time.Now(),
		Options{PushToTracker: true, ProjectKey: "PROJ"}, func(unit string) { seen = append(seen, unit) })

	if len(seen) != 2 || seen[0] != "go" || seen[1] != "rust" {
		t.Errorf("expected progress called for each tag in order, got %v", seen)
	}
}
