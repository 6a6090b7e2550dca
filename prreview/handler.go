package prreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	obs "github.com/KamdynS/bedrock-agents/observability"
)

// GitHubAPI is what the handler needs from GitHub. *GitHub implements it.
type GitHubAPI interface {
	Diff(ctx context.Context, repo string, number int) (string, error)
	PostReview(ctx context.Context, repo string, number int, r Review) (string, error)
}

// Outcome describes what happened to one delivery.
type Outcome struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Verdict   string `json:"verdict,omitempty"`
	Findings  int    `json:"findings,omitempty"`
	ReviewURL string `json:"review_url,omitempty"`
}

// Handler receives GitHub webhooks and posts reviews.
type Handler struct {
	Secret   []byte
	GitHub   GitHubAPI
	Reviewer *Reviewer
	// MaxDiffBytes bounds the diff sent to the model.
	MaxDiffBytes int
	// ReviewDrafts also reviews draft pull requests.
	ReviewDrafts bool
	Logger       *slog.Logger
}

const maxPayload = 5 << 20

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Outcome{Status: "error", Reason: "method not allowed"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Outcome{Status: "error", Reason: "read body"})
		return
	}
	if err := VerifySignature(h.Secret, body, r.Header.Get(SignatureHeader)); err != nil {
		h.logger().WarnContext(r.Context(), "webhook rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, Outcome{Status: "error", Reason: err.Error()})
		return
	}

	switch ev := r.Header.Get(EventHeader); ev {
	case "ping":
		writeJSON(w, http.StatusOK, Outcome{Status: "pong"})
		return
	case "pull_request":
	default:
		writeJSON(w, http.StatusAccepted, Outcome{Status: "skipped", Reason: "event " + ev})
		return
	}

	var event PullRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, Outcome{Status: "error", Reason: "invalid payload"})
		return
	}
	out, err := h.Process(r.Context(), event)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "review failed",
			"repo", event.Repository.FullName, "pr", event.PullRequest.Number, "error", err)
		status := http.StatusBadGateway
		var ge *GitHubError
		if errors.As(err, &ge) && ge.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, Outcome{Status: "error", Reason: err.Error()})
		return
	}
	code := http.StatusOK
	if out.Status == "skipped" {
		code = http.StatusAccepted
	}
	writeJSON(w, code, out)
}

// Process reviews one pull_request event. Events that need no review return a skipped Outcome.
func (h *Handler) Process(ctx context.Context, event PullRequestEvent) (*Outcome, error) {
	if !ShouldReview(event.Action) {
		return &Outcome{Status: "skipped", Reason: "action " + event.Action}, nil
	}
	pr := event.PullRequest
	if pr.Draft && !h.ReviewDrafts {
		return &Outcome{Status: "skipped", Reason: "draft"}, nil
	}
	repo := event.Repository.FullName
	if repo == "" || pr.Number == 0 {
		return nil, fmt.Errorf("event without repository or pull request number")
	}

	span, ctx := obs.TracerImpl.StartSpan(ctx, "prreview.review")
	defer span.End()
	span.SetAttribute("github.repository", repo)
	span.SetAttribute("github.pull_request", pr.Number)

	diff, err := h.GitHub.Diff(ctx, repo, pr.Number)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return nil, err
	}
	if len(diff) == 0 {
		return &Outcome{Status: "skipped", Reason: "empty diff"}, nil
	}
	diff, truncated := Truncate(diff, h.MaxDiffBytes)

	findings, err := h.Reviewer.Review(ctx, pr, diff)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return nil, err
	}
	url, err := h.GitHub.PostReview(ctx, repo, pr.Number, Review{
		CommitID: pr.Head.SHA,
		Body:     FormatReview(findings, truncated),
		Event:    ReviewEvent(findings.Verdict),
	})
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return nil, err
	}
	h.logger().InfoContext(ctx, "review posted",
		"repo", repo, "pr", pr.Number, "verdict", findings.Verdict, "findings", len(findings.Findings), "truncated", truncated)
	span.SetStatus(obs.StatusCodeOk, "")
	return &Outcome{Status: "reviewed", Verdict: findings.Verdict, Findings: len(findings.Findings), ReviewURL: url}, nil
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
