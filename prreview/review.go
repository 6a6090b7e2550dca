package prreview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/KamdynS/bedrock-agents/llm"
)

// Finding is one review remark.
type Finding struct {
	Path     string `json:"path" description:"File path from the diff header"`
	Line     int    `json:"line,omitempty" description:"Line number in the new file, 0 when not tied to a line"`
	Severity string `json:"severity" enum:"info|warning|error" description:"How serious the problem is"`
	Message  string `json:"message" description:"What is wrong and how to fix it"`
}

// ReviewFindings is the structured model output for a pull request.
type ReviewFindings struct {
	Summary  string    `json:"summary" description:"Two or three sentences on what the change does and its overall quality"`
	Verdict  string    `json:"verdict" enum:"approve|comment|request_changes"`
	Findings []Finding `json:"findings,omitempty"`
}

var (
	verdicts   = map[string]bool{"approve": true, "comment": true, "request_changes": true}
	severities = map[string]bool{"info": true, "warning": true, "error": true}
)

func (r ReviewFindings) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return errors.New("summary cannot be empty")
	}
	if !verdicts[r.Verdict] {
		return fmt.Errorf("verdict must be approve, comment or request_changes, got %q", r.Verdict)
	}
	for i, f := range r.Findings {
		if !severities[f.Severity] {
			return fmt.Errorf("findings[%d]: invalid severity %q", i, f.Severity)
		}
		if strings.TrimSpace(f.Message) == "" {
			return fmt.Errorf("findings[%d]: message cannot be empty", i)
		}
	}
	return nil
}

func (r ReviewFindings) JSONSchema() map[string]interface{} { return llm.SchemaOf(r) }

// Truncate cuts diff to at most max bytes on a line boundary and notes how much was dropped.
func Truncate(diff string, max int) (string, bool) {
	if max <= 0 || len(diff) <= max {
		return diff, false
	}
	cut := diff[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i+1]
	} else {
		// no line break to cut at: back off to the start of a rune
		for len(cut) > 0 && !utf8.RuneStart(diff[len(cut)]) {
			cut = cut[:len(cut)-1]
		}
	}
	return cut + fmt.Sprintf("\n[diff truncated: %d of %d bytes shown]\n", len(cut), len(diff)), true
}

const reviewPrompt = `You are a senior engineer reviewing a pull request. Read the unified diff and
report concrete problems: bugs, security issues, missing error handling, race conditions and
confusing code. Skip style nits a formatter would fix. Reference the file path and the new-file
line number for each finding. Use request_changes only for bugs or security issues.`

// Reviewer asks a model for findings on a diff.
type Reviewer struct {
	Model      llm.Client
	MaxRetries int
}

// Review returns structured findings for pr given its (possibly truncated) diff.
func (r *Reviewer) Review(ctx context.Context, pr PullRequest, diff string) (*ReviewFindings, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", pr.Title)
	if body := strings.TrimSpace(pr.Body); body != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", body)
	}
	fmt.Fprintf(&b, "\nDiff:\n%s", diff)

	out, err := llm.StructuredChat(ctx, r.Model, &llm.ChatRequest{
		SystemPrompt: reviewPrompt,
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
	}, ReviewFindings{}, r.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	return &out.Data, nil
}

var severityIcon = map[string]string{"error": "🔴", "warning": "🟡", "info": "🔵"}

// FormatReview renders findings as the markdown body of a GitHub review.
func FormatReview(f *ReviewFindings, truncated bool) string {
	var b strings.Builder
	b.WriteString("## Automated review\n\n")
	b.WriteString(strings.TrimSpace(f.Summary))
	b.WriteString("\n")
	if len(f.Findings) == 0 {
		b.WriteString("\nNo issues found.\n")
	} else {
		b.WriteString("\n")
		for _, fd := range f.Findings {
			loc := fd.Path
			if fd.Line > 0 {
				loc = fmt.Sprintf("%s:%d", fd.Path, fd.Line)
			}
			fmt.Fprintf(&b, "- %s **%s** `%s`: %s\n", severityIcon[fd.Severity], fd.Severity, loc, strings.TrimSpace(fd.Message))
		}
	}
	if truncated {
		b.WriteString("\n_The diff was truncated; later files were not reviewed._\n")
	}
	return b.String()
}

// ReviewEvent maps a verdict to the GitHub review event. Approvals are posted as comments so
// the bot never satisfies branch protection on its own.
func ReviewEvent(verdict string) string {
	if verdict == "request_changes" {
		return "REQUEST_CHANGES"
	}
	return "COMMENT"
}
