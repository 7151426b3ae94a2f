package normalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/scm"
)

func TestTruncateTitlePreservesShortStrings(t *testing.T) {
	short := "a short title"
	if got := TruncateTitle(short); got != short {
		t.Errorf("expected unchanged, got %q", got)
	}
}

func TestTruncateTitleTruncatesAt255CodePoints(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := TruncateTitle(long)
	if len([]rune(got)) != 255 {
		t.Errorf("expected 255 code points, got %d", len([]rune(got)))
	}
}

func TestSDKForRepository(t *testing.T) {
	cases := map[string]string{
		"widget-java":   "Java",
		"widget-js":     "Node",
		"widget-dotnet": "C#",
		"widget-python": "Python",
		"widget-go":     "(Unknown)",
	}
	for repo, want := range cases {
		if got := SDKForRepository(repo); got != want {
			t.Errorf("SDKForRepository(%q) = %q, want %q", repo, got, want)
		}
	}
}

func TestScmTagsMatchesCaseInsensitive(t *testing.T) {
	if got := ScmTags([]string{"bug", "Support"}); got != "[Support Labelled]" {
		t.Errorf("expected support label match, got %q", got)
	}
	if got := ScmTags([]string{"bug", "Team: Support"}); got != "[Support Labelled]" {
		t.Errorf("expected team: support match, got %q", got)
	}
	if got := ScmTags([]string{"bug"}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestNormalizeQAPublicDedupesByQuestionID(t *testing.T) {
	questions := []qapublic.Question{
		{QuestionID: 1, Title: "T1"},
		{QuestionID: 1, Title: "T1 duplicate"},
		{QuestionID: 2, Title: "T2"},
	}
	out := NormalizeQAPublic("stackoverflow", questions)
	if len(out) != 2 {
		t.Fatalf("expected 2 deduped issues, got %d", len(out))
	}
	if out[0].IssueID != "1" || out[1].IssueID != "2" {
		t.Errorf("unexpected order/ids: %+v", out)
	}
}

func TestNormalizeQAPublicIsIdempotent(t *testing.T) {
	questions := []qapublic.Question{{QuestionID: 1, Title: "T1"}}
	once := NormalizeQAPublic("stackoverflow", questions)
	twice := NormalizeQAPublic("stackoverflow", append(questions, questions...))
	if len(once) != len(twice) {
		t.Fatalf("expected same length, got %d vs %d", len(once), len(twice))
	}
}

func TestNormalizeSCMAppliesLabelEventFilter(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	after := since.Add(time.Hour)
	before := since.Add(-time.Hour)

	issues := []scm.Issue{
		mkIssue("repo-java", "support", after),
		mkIssue("repo-js", "support", before),
	}

	out := NormalizeSCM(issues, "support", since)
	if len(out) != 1 {
		t.Fatalf("expected 1 issue surviving label-event filter, got %d", len(out))
	}
	if out[0].SDK != "Java" {
		t.Errorf("expected Java SDK, got %q", out[0].SDK)
	}
	if out[0].Tags != "[Support Labelled]" {
		t.Errorf("expected support tag, got %q", out[0].Tags)
	}
}

func TestNormalizeSCMDedupesByURL(t *testing.T) {
	issue := mkIssue("repo-java", "", time.Time{})
	out := NormalizeSCM([]scm.Issue{issue, issue}, "", time.Time{})
	if len(out) != 1 {
		t.Fatalf("expected dedup by url, got %d", len(out))
	}
}

func TestDedupPreservesFirstOccurrence(t *testing.T) {
	questions := []qapublic.Question{
		{QuestionID: 1, Title: "first"},
		{QuestionID: 1, Title: "second"},
	}
	out := Dedup(NormalizeQAPublic("stackoverflow", questions))
	if len(out) != 1 || out[0].Title != "first" {
		t.Fatalf("expected first occurrence kept, got %+v", out)
	}
}

func mkIssue(repo, labelName string, labeledAt time.Time) scm.Issue {
	var issue scm.Issue
	issue.Number = 1
	issue.Title = "T"
	issue.URL = "https://example.com/" + repo + "/issues/1"
	issue.Repository.Name = repo
	if labelName != "" {
		issue.Labels.Nodes = append(issue.Labels.Nodes, struct {
			Name string `json:"name"`
		}{Name: labelName})
		node := struct {
			Typename string `json:"__typename"`
			scm.LabeledEvent
		}{Typename: "LabeledEvent"}
		node.LabeledEvent.CreatedAt = labeledAt
		node.LabeledEvent.Label.Name = labelName
		issue.TimelineItems.Nodes = append(issue.TimelineItems.Nodes, node)
	}
	return issue
}
