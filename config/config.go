// Package config loads the settings shared by every agent binary.
package config

import (
	"time"

	"github.com/KamdynS/bedrock-agents/observability/otel"
)

// Config is the root configuration. Each binary reads the sections it needs.
type Config struct {
	Logging   Logging     `yaml:"logging"`
	AWS       AWS         `yaml:"aws"`
	Model     Model       `yaml:"model"`
	Retry     Retry       `yaml:"retry"`
	Breaker   Breaker     `yaml:"breaker"`
	Server    Server      `yaml:"server"`
	Auth      Auth        `yaml:"auth"`
	Telemetry otel.Config `yaml:"telemetry"`
	A2A       A2A         `yaml:"a2a"`
	Trades    Trades      `yaml:"trades"`
	MCP       MCP         `yaml:"mcp"`
	WAF       WAF         `yaml:"waf"`
	GitHub    GitHub      `yaml:"github"`
	Weather   Weather     `yaml:"weather"`
	Sessions  Sessions    `yaml:"sessions"`
	Knowledge Knowledge   `yaml:"knowledge"`
}

// Logging configures the slog handler.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
	// Output is "stdout" or "stderr". Stdio MCP servers need stderr.
	Output string `yaml:"output"`
}

// AWS selects region and shared-config profile for SDK clients.
type AWS struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// Model selects the chat model. Provider is bedrock, openai or anthropic.
type Model struct {
	Provider    string  `yaml:"provider"`
	ID          string  `yaml:"id"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// GatewayURL points the openai provider at an OpenAI-compatible endpoint such as Bedrock Access Gateway.
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	// FallbackAnthropicKey enables a direct Anthropic fallback when Bedrock throttles.
	FallbackAnthropicKey string        `yaml:"fallback_anthropic_key"`
	Timeout              time.Duration `yaml:"timeout"`
	EmbeddingID          string        `yaml:"embedding_id"`
	GuardrailID          string        `yaml:"guardrail_id"`
	GuardrailVersion     string        `yaml:"guardrail_version"`
}

// Retry is the fixed retry policy applied to throttled model calls.
type Retry struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// Breaker guards calls to sibling agents.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Server configures HTTP listeners.
type Server struct {
	Addr        string        `yaml:"addr"`
	CORSOrigins []string      `yaml:"cors_origins"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds a whole agent run, including streamed responses.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MetricsPath  string        `yaml:"metrics_path"`
}

// Auth selects bearer token verification: none, cognito or hs256.
type Auth struct {
	Mode          string `yaml:"mode"`
	CognitoRegion string `yaml:"cognito_region"`
	UserPoolID    string `yaml:"user_pool_id"`
	ClientID      string `yaml:"client_id"`
	HS256Secret   string `yaml:"hs256_secret"`
}

// A2A holds sibling agent endpoints and this agent's public URL.
type A2A struct {
	PublicURL         string        `yaml:"public_url"`
	MarketAnalysisURL string        `yaml:"market_analysis_url"`
	TradeExecutionURL string        `yaml:"trade_execution_url"`
	Token             string        `yaml:"token"`
	CardTTL           time.Duration `yaml:"card_ttl"`
	// TokenURL, ClientID and ClientSecret enable Cognito client-credentials tokens
	// for calls to sibling agents. They take precedence over Token.
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Trades configures the trade log and event stream.
type Trades struct {
	Table       string `yaml:"table"`
	NATSURL     string `yaml:"nats_url"`
	Subject     string `yaml:"subject"`
	QuoteAPIURL string `yaml:"quote_api_url"`
	QuoteAPIKey string `yaml:"quote_api_key"`
}

// MCP points at a servers file in the mcpServers JSON format.
type MCP struct {
	ConfigPath string `yaml:"config_path"`
	// Strict fails startup when any server cannot be loaded.
	Strict bool `yaml:"strict"`
}

// WAF configures the ClickHouse-backed log query pipeline.
type WAF struct {
	ClickHouseDSN string        `yaml:"clickhouse_dsn"`
	Table         string        `yaml:"table"`
	MaxRows       int           `yaml:"max_rows"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
	// MCPServer names the server in the MCP config that exposes run_select_query.
	MCPServer string `yaml:"mcp_server"`
}

// GitHub configures the PR-review webhook.
type GitHub struct {
	WebhookSecret string `yaml:"webhook_secret"`
	Token         string `yaml:"token"`
	APIURL        string `yaml:"api_url"`
	MaxDiffBytes  int    `yaml:"max_diff_bytes"`
}

// Weather configures the NWS client.
type Weather struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Sessions selects the conversation store: memory, redis or s3.
type Sessions struct {
	Backend     string        `yaml:"backend"`
	RedisURL    string        `yaml:"redis_url"`
	S3Endpoint  string        `yaml:"s3_endpoint"`
	S3Bucket    string        `yaml:"s3_bucket"`
	S3Region    string        `yaml:"s3_region"`
	S3AccessKey string        `yaml:"s3_access_key"`
	S3SecretKey string        `yaml:"s3_secret_key"`
	S3UseSSL    bool          `yaml:"s3_use_ssl"`
	TTL         time.Duration `yaml:"ttl"`
	MaxMessages int           `yaml:"max_messages"`
}

// Knowledge configures the support agent's vector store.
type Knowledge struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Table       string `yaml:"table"`
	Dimensions  int    `yaml:"dimensions"`
	SeedDir     string `yaml:"seed_dir"`
}

// Defaults returns a Config with every default applied.
func Defaults() Config {
	return Config{
		Logging: Logging{Level: "info", Service: "bedrock-agents", Format: "json"},
		AWS:     AWS{Region: "us-east-1"},
		Model: Model{
			Provider:    "bedrock",
			ID:          "anthropic.claude-3-5-haiku-20241022-v1:0",
			Temperature: 0.2,
			MaxTokens:   2048,
			Timeout:     60 * time.Second,
			EmbeddingID: "amazon.titan-embed-text-v2:0",
		},
		Retry:   Retry{Attempts: 3, Delay: 60 * time.Second},
		Breaker: Breaker{MaxFailures: 5, Timeout: 30 * time.Second},
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MetricsPath:  "/metrics",
		},
		Auth:      Auth{Mode: "none"},
		Telemetry: otel.Config{Sampler: "parentbased_traceidratio", SampleRatio: 1},
		A2A:       A2A{CardTTL: 5 * time.Minute},
		Trades:    Trades{Table: "advisory-trades", Subject: "trades.executed"},
		MCP:       MCP{ConfigPath: "mcp.json"},
		WAF:       WAF{Table: "waf_logs", MaxRows: 100, QueryTimeout: 30 * time.Second, MCPServer: "clickhouse"},
		GitHub:    GitHub{APIURL: "https://api.github.com", MaxDiffBytes: 60000},
		Weather:   Weather{BaseURL: "https://api.weather.gov", UserAgent: "bedrock-agents-weather/1.0", CacheTTL: 10 * time.Minute},
		Sessions:  Sessions{Backend: "memory", S3Region: "us-east-1", S3UseSSL: true, TTL: 24 * time.Hour, MaxMessages: 50},
		Knowledge: Knowledge{Table: "kb_documents", Dimensions: 1024},
	}
}
