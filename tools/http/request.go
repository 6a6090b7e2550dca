package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/tools"
)

// ErrHostNotAllowed is returned when a request targets a host outside AllowedHosts.
var ErrHostNotAllowed = errors.New("host not allowed")

const defaultMaxBody = 64 << 10

// Options configures a RequestTool.
type Options struct {
	Timeout time.Duration
	// AllowedHosts restricts the hosts the model may call. Empty allows any host.
	AllowedHosts []string
	// Headers are added to every request, e.g. an API key for a quotes service.
	Headers map[string]string
	// MaxBodyBytes truncates response bodies handed back to the model.
	MaxBodyBytes int64
	UserAgent    string
}

// RequestTool lets a model call HTTP APIs.
type RequestTool struct {
	client *http.Client
	opts   Options
}

type requestArgs struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// NewRequestTool creates a new HTTP request tool
func NewRequestTool(opts Options) *RequestTool {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "bedrock-agents/1.0"
	}
	return &RequestTool{
		client: &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		opts:   opts,
	}
}

func (t *RequestTool) Name() string { return "http_request" }

func (t *RequestTool) Description() string {
	d := "Makes HTTP requests to external APIs and returns the status and body."
	if len(t.opts.AllowedHosts) > 0 {
		d += " Allowed hosts: " + strings.Join(t.opts.AllowedHosts, ", ") + "."
	}
	return d
}

func (t *RequestTool) Schema() map[string]interface{} {
	return tools.ObjectSchema(map[string]interface{}{
		"method":  map[string]interface{}{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
		"url":     map[string]interface{}{"type": "string", "description": "Absolute http(s) URL"},
		"body":    map[string]interface{}{"type": "string", "description": "Request body, usually JSON"},
		"headers": map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "string"}},
	}, "url")
}

func (t *RequestTool) Execute(ctx context.Context, input string) (string, error) {
	args, err := tools.DecodeArgs[requestArgs](input)
	if err != nil {
		return "", err
	}
	method := strings.ToUpper(strings.TrimSpace(args.Method))
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(args.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", args.URL)
	}
	if !t.allowed(u.Hostname()) {
		return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	var body io.Reader
	if args.Body != "" {
		body = strings.NewReader(args.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if args.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", t.opts.UserAgent)
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range t.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, t.opts.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	suffix := ""
	if int64(len(respBody)) > t.opts.MaxBodyBytes {
		respBody = respBody[:t.opts.MaxBodyBytes]
		suffix = "\n[truncated]"
	}
	return fmt.Sprintf("Status: %s\nBody: %s%s", resp.Status, respBody, suffix), nil
}

func (t *RequestTool) allowed(host string) bool {
	if len(t.opts.AllowedHosts) == 0 {
		return true
	}
	for _, h := range t.opts.AllowedHosts {
		if strings.EqualFold(h, host) || (strings.HasPrefix(h, "*.") && strings.HasSuffix(strings.ToLower(host), strings.ToLower(h[1:]))) {
			return true
		}
	}
	return false
}

var _ tools.Tool = (*RequestTool)(nil)
