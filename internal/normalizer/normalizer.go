// Package normalizer maps source-specific upstream records onto the
// uniform Normalized Issue representation, applying
// deduplication, title truncation, tag derivation, SDK lookup, and URL
// canonicalization. It has no network or storage dependency: it is a
// pure function of the records a C1 client already fetched.
package normalizer

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stevkan/support-tracker/internal/qainternal"
	"github.com/stevkan/support-tracker/internal/qapublic"
	"github.com/stevkan/support-tracker/internal/scm"
	"github.com/stevkan/support-tracker/pkg/models"
)

const maxTitleCodePoints = 255

// sdkTable maps a repository-name suffix to its SDK label. Longer
// suffixes are checked first so e.g. "foo-dotnet" doesn't match a
// shorter unrelated suffix.
var sdkTable = []struct {
	suffix string
	sdk    string
}{
	{"-dotnet", "C#"},
	{"-python", "Python"},
	{"-java", "Java"},
	{"-js", "Node"},
}

const unknownSDK = "(Unknown)"

// TruncateTitle truncates s to at most maxTitleCodePoints code points,
// leaving shorter strings untouched.
func TruncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleCodePoints {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTitleCodePoints])
}

// SDKForRepository derives the SDK label from a repository's short
// name via the fixed lookup table.
func SDKForRepository(repository string) string {
	lower := strings.ToLower(repository)
	for _, entry := range sdkTable {
		if strings.HasSuffix(lower, entry.suffix) {
			return entry.sdk
		}
	}
	return unknownSDK
}

// ScmTags returns the literal "[Support Labelled]" tag when any label
// name case-insensitively equals "support" or "team: support", else "".
func ScmTags(labelNames []string) string {
	for _, name := range labelNames {
		lower := strings.ToLower(name)
		if lower == "support" || lower == "team: support" {
			return "[Support Labelled]"
		}
	}
	return ""
}

// NormalizeQAPublic maps a public Q&A question onto a Normalized Issue,
// deduplicating by question id and canonicalizing the URL.
func NormalizeQAPublic(site string, questions []qapublic.Question) []models.NormalizedIssue {
	seen := make(map[int]bool, len(questions))
	out := make([]models.NormalizedIssue, 0, len(questions))
	for _, q := range questions {
		if seen[q.QuestionID] {
			continue
		}
		seen[q.QuestionID] = true

		out = append(out, models.NormalizedIssue{
			IssueID:    strconv.Itoa(q.QuestionID),
			SourceKind: models.SourceQAPublic,
			Title:      TruncateTitle(q.Title),
			SDK:        unknownSDK,
			URL:        qapublic.CanonicalURL(site, q.QuestionID),
		})
	}
	return out
}

// NormalizeQAInternal maps an internal Q&A question onto a Normalized
// Issue, deduplicating by question id and canonicalizing the URL
// against the internal host.
func NormalizeQAInternal(internalHost string, questions []qainternal.Question) []models.NormalizedIssue {
	seen := make(map[int]bool, len(questions))
	out := make([]models.NormalizedIssue, 0, len(questions))
	for _, q := range questions {
		if seen[q.QuestionID] {
			continue
		}
		seen[q.QuestionID] = true

		out = append(out, models.NormalizedIssue{
			IssueID:    strconv.Itoa(q.QuestionID),
			SourceKind: models.SourceQAInternal,
			Title:      TruncateTitle(q.Title),
			SDK:        unknownSDK,
			URL:        qainternal.CanonicalURL(internalHost, q.QuestionID),
		})
	}
	return out
}

// NormalizeSCM maps SCM issues onto Normalized Issues, applying the
// label-event filter (when label is non-empty), tag derivation, SDK
// lookup, and dedup by canonical URL.
func NormalizeSCM(issues []scm.Issue, label string, since time.Time) []models.NormalizedIssue {
	seen := make(map[string]bool, len(issues))
	out := make([]models.NormalizedIssue, 0, len(issues))

	for _, issue := range issues {
		if label != "" && !labelAppliedAfter(issue, label, since) {
			continue
		}

		if seen[issue.URL] {
			continue
		}
		seen[issue.URL] = true

		labelNames := make([]string, 0, len(issue.Labels.Nodes))
		for _, l := range issue.Labels.Nodes {
			labelNames = append(labelNames, l.Name)
		}

		out = append(out, models.NormalizedIssue{
			IssueID:    strconv.Itoa(issue.Number),
			SourceKind: models.SourceSCMIssues,
			Title:      TruncateTitle(issue.Title),
			Tags:       ScmTags(labelNames),
			SDK:        SDKForRepository(issue.Repository.Name),
			Repository: strings.ToLower(issue.Repository.Name),
			URL:        issue.URL,
		})
	}
	return out
}

// labelAppliedAfter finds the LabeledEvent matching label (case
// insensitive) and reports whether it fired strictly after since,
// restoring correctness when a label was applied after the issue's
// creation date.
func labelAppliedAfter(issue scm.Issue, label string, since time.Time) bool {
	lower := strings.ToLower(label)
	for _, node := range issue.TimelineItems.Nodes {
		if strings.ToLower(node.Label.Name) != lower {
			continue
		}
		if node.CreatedAt.After(since) {
			return true
		}
	}
	return false
}

// Dedup collapses a sequence of Normalized Issues by their source's
// canonical dedup key, keeping first occurrence order. SCM issue
// numbers are only unique within a repository, so SCM issues dedup on
// URL instead of IssueID; the Q&A sources' question ids are already
// globally unique, so those keep IssueID.
func Dedup(issues []models.NormalizedIssue) []models.NormalizedIssue {
	seen := make(map[string]bool, len(issues))
	out := make([]models.NormalizedIssue, 0, len(issues))
	for _, issue := range issues {
		key := dedupKey(issue)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, issue)
	}
	return out
}

func dedupKey(issue models.NormalizedIssue) string {
	if issue.SourceKind == models.SourceSCMIssues {
		return issue.URL
	}
	return issue.IssueID
}
