// Package app holds the startup wiring shared by the agent binaries: configuration,
// logging, telemetry, metrics and the model clients selected by configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/KamdynS/bedrock-agents/auth"
	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/llm/anthropic"
	"github.com/KamdynS/bedrock-agents/llm/bedrock"
	"github.com/KamdynS/bedrock-agents/llm/openai"
	"github.com/KamdynS/bedrock-agents/logging"
	obs "github.com/KamdynS/bedrock-agents/observability"
	"github.com/KamdynS/bedrock-agents/observability/otel"
	"github.com/KamdynS/bedrock-agents/observability/prom"
	"github.com/KamdynS/bedrock-agents/rag"
	httpserver "github.com/KamdynS/bedrock-agents/server/http"
)

// App is a started binary.
type App struct {
	Config  *config.Config
	AWS     aws.Config
	Logger  *slog.Logger
	Metrics *prom.Exporter

	shutdown otel.ShutdownFunc
	bedrock  *bedrockruntime.Client
}

// Init loads configuration, installs the default logger, tracing and Prometheus metrics.
// service overrides the configured service name unless SERVICE_NAME is set.
func Init(ctx context.Context, service string) (*App, error) {
	cfg, awsCfg, err := config.LoadWithAWS(ctx)
	if err != nil {
		return nil, err
	}
	return Start(ctx, service, cfg, awsCfg)
}

// Start is Init for an already loaded configuration.
func Start(ctx context.Context, service string, cfg *config.Config, awsCfg aws.Config) (*App, error) {
	if os.Getenv("SERVICE_NAME") == "" && service != "" {
		cfg.Logging.Service = service
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.Logging.Service
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	shutdown, err := otel.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	exp, err := prom.New(metricsNamespace(cfg.Logging.Service))
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("setup metrics: %w", err)
	}
	obs.SetMetrics(exp)

	return &App{Config: cfg, AWS: awsCfg, Logger: logger, Metrics: exp, shutdown: shutdown}, nil
}

// metricsNamespace turns a service name into a valid Prometheus namespace.
func metricsNamespace(service string) string {
	b := []byte(service)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			b[i] = '_'
		}
	}
	if len(b) == 0 || b[0] >= '0' && b[0] <= '9' {
		return "agents"
	}
	return string(b)
}

// Close flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}

func (a *App) runtime() *bedrockruntime.Client {
	if a.bedrock == nil {
		a.bedrock = bedrockruntime.NewFromConfig(a.AWS)
	}
	return a.bedrock
}

// Model builds the configured chat client. With an Anthropic fallback key, Bedrock and
// gateway clients fall back to the Anthropic API on throttling and outages.
func (a *App) Model() (llm.Client, error) {
	m := a.Config.Model
	retry := llm.FixedRetryConfig(a.Config.Retry.Attempts, a.Config.Retry.Delay)

	var primary llm.Client
	switch m.Provider {
	case "bedrock":
		c, err := bedrock.NewClient(bedrock.Config{
			Model:       m.ID,
			Region:      a.Config.AWS.Region,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
			Timeout:     m.Timeout,
			GuardrailID: m.GuardrailID,
			GuardrailV:  m.GuardrailVersion,
			RetryConfig: retry,
		}, a.runtime())
		if err != nil {
			return nil, err
		}
		primary = c
	case "openai":
		c, err := openai.NewClient(openai.Config{
			APIKey:      m.APIKey,
			Model:       m.ID,
			BaseURL:     m.GatewayURL,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
			Timeout:     m.Timeout,
			RetryConfig: retry,
		})
		if err != nil {
			return nil, err
		}
		primary = c
	case "anthropic":
		key := m.APIKey
		if key == "" {
			key = m.FallbackAnthropicKey
		}
		c, err := anthropic.NewClient(anthropic.Config{
			APIKey:      key,
			Model:       m.ID,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
			Timeout:     m.Timeout,
			RetryConfig: retry,
		})
		if err != nil {
			return nil, err
		}
		return llm.NewInstrumentedClient(c), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", m.Provider)
	}

	if m.FallbackAnthropicKey != "" {
		fb, err := anthropic.NewClient(anthropic.Config{
			APIKey:      m.FallbackAnthropicKey,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
			Timeout:     m.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic fallback: %w", err)
		}
		primary = llm.NewFallbackClient(primary, fb)
	}
	return llm.NewInstrumentedClient(primary), nil
}

// Embedder returns Titan embeddings on Bedrock, or gateway embeddings for the openai provider.
func (a *App) Embedder() (rag.Embedder, error) {
	m := a.Config.Model
	switch m.Provider {
	case "openai":
		c, err := openai.NewClient(openai.Config{APIKey: m.APIKey, BaseURL: m.GatewayURL, Timeout: m.Timeout})
		if err != nil {
			return nil, err
		}
		return openai.Embedder{Client: c, Model: m.EmbeddingID}, nil
	default:
		return bedrock.NewEmbedder(a.runtime(), m.EmbeddingID, a.Config.Knowledge.Dimensions)
	}
}

// Verifier returns the bearer token verifier for auth.mode, nil for "none".
func (a *App) Verifier() (auth.Verifier, error) {
	return auth.FromConfig(a.Config.Auth)
}

// HTTPConfig maps the server section onto the agent server, with metrics and auth attached.
func (a *App) HTTPConfig() (httpserver.Config, error) {
	v, err := a.Verifier()
	if err != nil {
		return httpserver.Config{}, err
	}
	hc := httpserver.ConfigFrom(a.Config.Server)
	hc.Metrics = prom.Handler(a.Metrics)
	hc.Verifier = v
	hc.Service = a.Config.Logging.Service
	hc.Logger = a.Logger
	return hc, nil
}

// SignalContext is canceled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Fatal logs err and exits. Binaries call it from main.
func Fatal(msg string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	slog.Error(msg, "error", err)
	os.Exit(1)
}
