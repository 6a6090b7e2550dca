package prreview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// GitHubError is a non-2xx response from the REST API.
type GitHubError struct {
	StatusCode int
	Message    string
}

func (e *GitHubError) Error() string {
	return fmt.Sprintf("github: %d %s", e.StatusCode, e.Message)
}

// GitHub is a minimal REST client for diffs and reviews.
type GitHub struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewGitHub returns a client for baseURL (https://api.github.com for github.com).
func NewGitHub(baseURL, token string) *GitHub {
	return &GitHub{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Diff returns the unified diff of pull request number in repo ("owner/name").
func (g *GitHub) Diff(ctx context.Context, repo string, number int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", g.BaseURL, repo, number)
	body, err := g.do(ctx, http.MethodGet, url, "application/vnd.github.v3.diff", nil)
	if err != nil {
		return "", fmt.Errorf("fetch diff: %w", err)
	}
	return string(body), nil
}

// Review is the body of POST /repos/{repo}/pulls/{n}/reviews.
type Review struct {
	CommitID string `json:"commit_id,omitempty"`
	Body     string `json:"body"`
	Event    string `json:"event"`
}

// PostReview creates a review and returns its html_url.
func (g *GitHub) PostReview(ctx context.Context, repo string, number int, r Review) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/repos/%s/pulls/%d/reviews", g.BaseURL, repo, number)
	body, err := g.do(ctx, http.MethodPost, url, "application/vnd.github+json", payload)
	if err != nil {
		return "", fmt.Errorf("post review: %w", err)
	}
	var out struct {
		HTMLURL string `json:"html_url"`
	}
	_ = json.Unmarshal(body, &out)
	return out.HTMLURL, nil
}

func (g *GitHub) do(ctx context.Context, method, url, accept string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	hc := g.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &ge) == nil && ge.Message != "" {
			msg = ge.Message
		}
		return nil, &GitHubError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}
