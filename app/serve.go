package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/a2a"
	"github.com/KamdynS/bedrock-agents/auth"
	"github.com/KamdynS/bedrock-agents/cache"
	"github.com/KamdynS/bedrock-agents/lambdahttp"
	"github.com/KamdynS/bedrock-agents/observability/prom"
	"github.com/KamdynS/bedrock-agents/resilience"
)

// A2AHandler serves srv with the JSON-RPC endpoint behind the configured verifier,
// plus the metrics endpoint.
func (a *App) A2AHandler(srv *a2a.Server) (http.Handler, error) {
	v, err := a.Verifier()
	if err != nil {
		return nil, err
	}
	var mw []func(http.Handler) http.Handler
	if v != nil {
		mw = append(mw, auth.Middleware(v))
	}
	r := chi.NewRouter()
	r.Method(http.MethodGet, a.Config.Server.MetricsPath, prom.Handler(a.Metrics))
	r.Mount("/", srv.Handler(mw...))
	return otelhttp.NewHandler(r, a.Config.Logging.Service), nil
}

// Serve runs h until ctx is canceled, or hands it to the Lambda runtime when started there.
func (a *App) Serve(ctx context.Context, h http.Handler) error {
	if lambdahttp.InLambda() {
		lambdahttp.Start(h)
		return nil
	}
	s := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server starting", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// A2ATokenSource returns the credentials for calls to sibling agents: Cognito client
// credentials when configured, else the static token, else none.
func (a *App) A2ATokenSource() a2a.TokenSource {
	c := a.Config.A2A
	if c.TokenURL != "" && c.ClientID != "" {
		cc := &auth.ClientCredentials{
			TokenURL:     c.TokenURL,
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Scopes:       c.Scopes,
		}
		return cc.Token
	}
	if c.Token != "" {
		return a2a.StaticToken(c.Token)
	}
	return nil
}

// A2AClient builds a client for the agent at url with the configured credentials,
// a circuit breaker and the shared card cache.
func (a *App) A2AClient(name, url string, cards *cache.Cache) *a2a.Client {
	opts := []a2a.ClientOption{
		a2a.WithBreaker(resilience.NewBreaker(name, a.Config.Breaker.MaxFailures, a.Config.Breaker.Timeout)),
	}
	if ts := a.A2ATokenSource(); ts != nil {
		opts = append(opts, a2a.WithToken(ts))
	}
	if cards != nil {
		opts = append(opts, a2a.WithCardCache(cards, a.Config.A2A.CardTTL))
	}
	return a2a.NewClient(url, opts...)
}
