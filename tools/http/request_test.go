package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestToolGetAndPost(t *testing.T) {
	var gotKey, gotBody string
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		switch r.Method {
		case stdhttp.MethodGet:
			_, _ = w.Write([]byte(`{"symbol":"AMZN","price":185.2}`))
		case stdhttp.MethodPost:
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.WriteHeader(201)
			_, _ = w.Write([]byte("created"))
		default:
			w.WriteHeader(405)
		}
	}))
	defer srv.Close()

	tool := NewRequestTool(Options{Headers: map[string]string{"X-Api-Key": "secret"}})
	out, err := tool.Execute(context.Background(), `{"url":"`+srv.URL+`/quote/AMZN"}`)
	if err != nil || !strings.Contains(out, "200 OK") || !strings.Contains(out, `"price":185.2`) {
		t.Fatalf("get failed: %v %q", err, out)
	}
	if gotKey != "secret" {
		t.Fatalf("configured header not sent")
	}
	out, err = tool.Execute(context.Background(), `{"method":"post","url":"`+srv.URL+`","body":"{\"a\":1}"}`)
	if err != nil || !strings.Contains(out, "201") || gotBody != `{"a":1}` {
		t.Fatalf("post failed: %v %q body=%q", err, out, gotBody)
	}
}

func TestRequestToolTruncates(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()
	out, err := NewRequestTool(Options{MaxBodyBytes: 10}).Execute(context.Background(), `{"url":"`+srv.URL+`"}`)
	if err != nil || !strings.HasSuffix(out, "xxxxxxxxxx\n[truncated]") {
		t.Fatalf("got %q %v", out, err)
	}
}

func TestRequestToolBadInput(t *testing.T) {
	tool := NewRequestTool(Options{AllowedHosts: []string{"api.weather.gov", "*.example.com"}})
	if _, err := tool.Execute(context.Background(), "BAD"); err == nil {
		t.Fatalf("expected input error")
	}
	if _, err := tool.Execute(context.Background(), `{"url":"ftp://api.weather.gov"}`); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := tool.Execute(context.Background(), `{"url":"http://169.254.169.254/latest"}`); !errors.Is(err, ErrHostNotAllowed) {
		t.Fatalf("expected ErrHostNotAllowed, got %v", err)
	}
	if !tool.allowed("quotes.example.com") || tool.allowed("example.com.evil") {
		t.Fatalf("wildcard matching wrong")
	}
}
