package prreview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/bedrock-agents/llm/llmtest"
)

var secret = []byte("s3cret")

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	require.NoError(t, VerifySignature(secret, body, Sign(secret, body)))

	assert.ErrorIs(t, VerifySignature(secret, body, Sign([]byte("other"), body)), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, body, "sha1=abc"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, body, "sha256=zz"), ErrInvalidSignature)
	assert.Error(t, VerifySignature(nil, body, Sign(secret, body)))
}

func TestShouldReview(t *testing.T) {
	for _, a := range []string{"opened", "synchronize", "reopened"} {
		assert.True(t, ShouldReview(a), a)
	}
	for _, a := range []string{"closed", "labeled", "edited", ""} {
		assert.False(t, ShouldReview(a), a)
	}
}

func TestTruncate(t *testing.T) {
	diff := "line one\nline two\nline three\n"
	out, cut := Truncate(diff, 0)
	assert.False(t, cut)
	assert.Equal(t, diff, out)

	out, cut = Truncate(diff, 14)
	assert.True(t, cut)
	assert.True(t, strings.HasPrefix(out, "line one\n\n[diff truncated: 9 of 29 bytes shown]"))

	// a single long line is cut on a rune boundary
	out, cut = Truncate("+ héllo wörld", 4)
	assert.True(t, cut)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(out, "+ h\n[diff truncated: 3 of 15 bytes shown]"), out)
}

func TestReviewFindingsValidate(t *testing.T) {
	ok := ReviewFindings{Summary: "Adds retries.", Verdict: "comment", Findings: []Finding{{Path: "a.go", Severity: "warning", Message: "unchecked error"}}}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Verdict = "lgtm"
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Findings = []Finding{{Path: "a.go", Severity: "critical", Message: "x"}}
	assert.Error(t, bad.Validate())

	assert.Error(t, ReviewFindings{Verdict: "approve"}.Validate())
}

func TestFormatReview(t *testing.T) {
	body := FormatReview(&ReviewFindings{
		Summary: "Adds a cache.",
		Verdict: "request_changes",
		Findings: []Finding{
			{Path: "cache.go", Line: 42, Severity: "error", Message: "map written without lock"},
			{Path: "README.md", Severity: "info", Message: "document the TTL"},
		},
	}, true)
	assert.Contains(t, body, "Adds a cache.")
	assert.Contains(t, body, "**error** `cache.go:42`: map written without lock")
	assert.Contains(t, body, "`README.md`: document the TTL")
	assert.Contains(t, body, "truncated")

	assert.Contains(t, FormatReview(&ReviewFindings{Summary: "Fine.", Verdict: "approve"}, false), "No issues found.")
	assert.Equal(t, "REQUEST_CHANGES", ReviewEvent("request_changes"))
	assert.Equal(t, "COMMENT", ReviewEvent("approve"))
}

type fakeGitHub struct {
	diff    string
	diffErr error
	posted  []Review
}

func (f *fakeGitHub) Diff(context.Context, string, int) (string, error) { return f.diff, f.diffErr }

func (f *fakeGitHub) PostReview(_ context.Context, _ string, _ int, r Review) (string, error) {
	f.posted = append(f.posted, r)
	return "https://github.com/o/r/pull/7#pullrequestreview-1", nil
}

const findingsJSON = `{"summary":"Adds input validation.","verdict":"request_changes","findings":[{"path":"main.go","line":12,"severity":"error","message":"nil dereference when body is empty"}]}`

func prPayload(action string, draft bool) []byte {
	ev := map[string]any{
		"action": action,
		"number": 7,
		"pull_request": map[string]any{
			"number": 7, "title": "Validate input", "draft": draft,
			"head": map[string]any{"sha": "abc123"},
		},
		"repository": map[string]any{"full_name": "o/r"},
	}
	b, _ := json.Marshal(ev)
	return b
}

func deliver(t *testing.T, h http.Handler, event string, body []byte, sig string) (*httptest.ResponseRecorder, Outcome) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(EventHeader, event)
	req.Header.Set(SignatureHeader, sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestHandlerReviewsPullRequest(t *testing.T) {
	gh := &fakeGitHub{diff: "diff --git a/main.go b/main.go\n+func main() {}\n"}
	model := llmtest.New(findingsJSON)
	h := &Handler{Secret: secret, GitHub: gh, Reviewer: &Reviewer{Model: model}, MaxDiffBytes: 1000}

	body := prPayload("opened", false)
	rec, out := deliver(t, h, "pull_request", body, Sign(secret, body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reviewed", out.Status)
	assert.Equal(t, "request_changes", out.Verdict)
	assert.Equal(t, 1, out.Findings)

	require.Len(t, gh.posted, 1)
	assert.Equal(t, "abc123", gh.posted[0].CommitID)
	assert.Equal(t, "REQUEST_CHANGES", gh.posted[0].Event)
	assert.Contains(t, gh.posted[0].Body, "nil dereference")

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "Title: Validate input")
	assert.Contains(t, calls[0].Messages[0].Content, "+func main() {}")
}

func TestHandlerSkipsAndRejects(t *testing.T) {
	gh := &fakeGitHub{diff: "diff"}
	h := &Handler{Secret: secret, GitHub: gh, Reviewer: &Reviewer{Model: llmtest.New(findingsJSON)}}

	body := prPayload("closed", false)
	rec, out := deliver(t, h, "pull_request", body, Sign(secret, body))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "skipped", out.Status)

	body = prPayload("opened", true)
	_, out = deliver(t, h, "pull_request", body, Sign(secret, body))
	assert.Equal(t, "draft", out.Reason)

	rec, out = deliver(t, h, "ping", []byte(`{}`), Sign(secret, []byte(`{}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", out.Status)

	rec, _ = deliver(t, h, "issues", []byte(`{}`), Sign(secret, []byte(`{}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	body = prPayload("opened", false)
	rec, _ = deliver(t, h, "pull_request", body, Sign([]byte("wrong"), body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, gh.posted)
}

func TestHandlerGitHubFailure(t *testing.T) {
	gh := &fakeGitHub{diffErr: &GitHubError{StatusCode: 404, Message: "Not Found"}}
	h := &Handler{Secret: secret, GitHub: gh, Reviewer: &Reviewer{Model: llmtest.New(findingsJSON)}}
	body := prPayload("synchronize", false)
	rec, out := deliver(t, h, "pull_request", body, Sign(secret, body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, out.Reason, "Not Found")
}

func TestGitHubClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/o/r/pulls/7":
			assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
			_, _ = io.WriteString(w, "diff --git a/x b/x\n")
		case r.Method == http.MethodPost && r.URL.Path == "/repos/o/r/pulls/7/reviews":
			var rv Review
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rv))
			assert.Equal(t, "COMMENT", rv.Event)
			_, _ = io.WriteString(w, `{"id":1,"html_url":"https://github.com/o/r/pull/7#pullrequestreview-1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Not Found"}`)
		}
	}))
	defer srv.Close()

	gh := NewGitHub(srv.URL+"/", "tok")
	ctx := context.Background()
	diff, err := gh.Diff(ctx, "o/r", 7)
	require.NoError(t, err)
	assert.Equal(t, "diff --git a/x b/x\n", diff)

	url, err := gh.PostReview(ctx, "o/r", 7, Review{Body: "ok", Event: "COMMENT"})
	require.NoError(t, err)
	assert.Contains(t, url, "pullrequestreview-1")

	_, err = gh.Diff(ctx, "o/r", 8)
	var ge *GitHubError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, 404, ge.StatusCode)
	assert.Equal(t, "Not Found", ge.Message)
}
