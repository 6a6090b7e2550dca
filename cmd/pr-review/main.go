// Command pr-review reviews GitHub pull requests with a Bedrock model. It receives
// pull_request webhooks on /webhook, locally or as a Lambda behind API Gateway.
package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/app"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/lambdahttp"
	"github.com/KamdynS/bedrock-agents/observability/prom"
	"github.com/KamdynS/bedrock-agents/prreview"
)

func main() {
	ctx, stop := app.SignalContext()
	defer stop()
	app.Fatal("pr-review failed", run(ctx))
}

func run(ctx context.Context) error {
	a, err := app.Init(ctx, "pr-review")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	gh := a.Config.GitHub
	if err := config.Require("github.webhook_secret", gh.WebhookSecret, "github.token", gh.Token); err != nil {
		return err
	}

	model, err := a.Model()
	if err != nil {
		return err
	}
	h := &prreview.Handler{
		Secret:       []byte(gh.WebhookSecret),
		GitHub:       prreview.NewGitHub(gh.APIURL, gh.Token),
		Reviewer:     &prreview.Reviewer{Model: model, MaxRetries: 2},
		MaxDiffBytes: gh.MaxDiffBytes,
		Logger:       a.Logger,
	}

	// API Gateway strips ROUTE_PREFIX, so the Lambda sees the webhook on any path.
	if lambdahttp.InLambda() {
		return a.Serve(ctx, otelhttp.NewHandler(h, a.Config.Logging.Service))
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodPost, "/webhook", h)
	r.Method(http.MethodGet, a.Config.Server.MetricsPath, prom.Handler(a.Metrics))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return a.Serve(ctx, otelhttp.NewHandler(r, a.Config.Logging.Service))
}
