package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agents.yaml"

// DefaultEnvFile is the dotenv file read during local development.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < .env < ENV.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("AGENTS_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path, DefaultEnvFile)
}

// LoadFrom loads yamlPath and envFile, both optional, over the defaults and
// then overlays the process environment.
func LoadFrom(yamlPath, envFile string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	dotenv, err := readDotenv(envFile)
	if err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}
	loadEnv(&cfg, lookup(dotenv))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from flags or AGENTS_CONFIG
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return godotenv.Read(path)
}

type lookupFunc func(key string) string

// lookup prefers the process environment over the dotenv file.
func lookup(dotenv map[string]string) lookupFunc {
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return dotenv[key]
	}
}

func loadEnv(cfg *Config, get lookupFunc) {
	setString(get, &cfg.Logging.Level, "LOG_LEVEL")
	setString(get, &cfg.Logging.Service, "SERVICE_NAME")
	setString(get, &cfg.Logging.Format, "LOG_FORMAT")
	setString(get, &cfg.Logging.Output, "LOG_OUTPUT")

	setString(get, &cfg.AWS.Region, "AWS_REGION")
	setString(get, &cfg.AWS.Profile, "AWS_PROFILE")

	setString(get, &cfg.Model.Provider, "MODEL_PROVIDER")
	setString(get, &cfg.Model.ID, "BEDROCK_MODEL_ID")
	setFloat64(get, &cfg.Model.Temperature, "MODEL_TEMPERATURE")
	setInt(get, &cfg.Model.MaxTokens, "MODEL_MAX_TOKENS")
	setString(get, &cfg.Model.GatewayURL, "OPENAI_BASE_URL")
	setString(get, &cfg.Model.APIKey, "OPENAI_API_KEY")
	setString(get, &cfg.Model.FallbackAnthropicKey, "ANTHROPIC_API_KEY")
	setDuration(get, &cfg.Model.Timeout, "MODEL_TIMEOUT")
	setString(get, &cfg.Model.EmbeddingID, "EMBEDDING_MODEL_ID")
	setString(get, &cfg.Model.GuardrailID, "BEDROCK_GUARDRAIL_ID")
	setString(get, &cfg.Model.GuardrailVersion, "BEDROCK_GUARDRAIL_VERSION")

	setInt(get, &cfg.Retry.Attempts, "RETRY_ATTEMPTS")
	setDuration(get, &cfg.Retry.Delay, "RETRY_DELAY")
	setInt(get, &cfg.Breaker.MaxFailures, "BREAKER_MAX_FAILURES")
	setDuration(get, &cfg.Breaker.Timeout, "BREAKER_TIMEOUT")

	setString(get, &cfg.Server.Addr, "ADDR")
	if p := get("PORT"); p != "" {
		cfg.Server.Addr = ":" + p
	}
	setList(get, &cfg.Server.CORSOrigins, "CORS_ORIGINS")
	setDuration(get, &cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")

	setString(get, &cfg.Auth.Mode, "AUTH_MODE")
	setString(get, &cfg.Auth.CognitoRegion, "COGNITO_REGION")
	setString(get, &cfg.Auth.UserPoolID, "COGNITO_USER_POOL_ID")
	setString(get, &cfg.Auth.ClientID, "COGNITO_CLIENT_ID")
	setString(get, &cfg.Auth.HS256Secret, "AUTH_HS256_SECRET")

	setBool(get, &cfg.Telemetry.Enabled, "OTEL_ENABLED")
	setString(get, &cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setString(get, &cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(get, &cfg.Telemetry.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
	setString(get, &cfg.Telemetry.Sampler, "OTEL_TRACES_SAMPLER")
	setFloat64(get, &cfg.Telemetry.SampleRatio, "OTEL_TRACES_SAMPLER_ARG")

	setString(get, &cfg.A2A.PublicURL, "A2A_PUBLIC_URL")
	setString(get, &cfg.A2A.MarketAnalysisURL, "MARKET_ANALYSIS_AGENT_URL")
	setString(get, &cfg.A2A.TradeExecutionURL, "TRADE_EXECUTION_AGENT_URL")
	setString(get, &cfg.A2A.Token, "A2A_TOKEN")
	setString(get, &cfg.A2A.TokenURL, "A2A_TOKEN_URL")
	setString(get, &cfg.A2A.ClientID, "A2A_CLIENT_ID")
	setString(get, &cfg.A2A.ClientSecret, "A2A_CLIENT_SECRET")
	setList(get, &cfg.A2A.Scopes, "A2A_SCOPES")

	setString(get, &cfg.Trades.Table, "TRADES_TABLE")
	setString(get, &cfg.Trades.NATSURL, "NATS_URL")
	setString(get, &cfg.Trades.Subject, "TRADES_SUBJECT")
	setString(get, &cfg.Trades.QuoteAPIURL, "QUOTE_API_URL")
	setString(get, &cfg.Trades.QuoteAPIKey, "QUOTE_API_KEY")

	setString(get, &cfg.MCP.ConfigPath, "MCP_CONFIG")
	setBool(get, &cfg.MCP.Strict, "MCP_STRICT")

	setString(get, &cfg.WAF.ClickHouseDSN, "CLICKHOUSE_DSN")
	setString(get, &cfg.WAF.Table, "WAF_TABLE")
	setInt(get, &cfg.WAF.MaxRows, "WAF_MAX_ROWS")
	setString(get, &cfg.WAF.MCPServer, "WAF_MCP_SERVER")

	setString(get, &cfg.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")
	setString(get, &cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(get, &cfg.GitHub.APIURL, "GITHUB_API_URL")
	setInt(get, &cfg.GitHub.MaxDiffBytes, "MAX_DIFF_BYTES")

	setString(get, &cfg.Weather.BaseURL, "NWS_API_BASE")
	setString(get, &cfg.Weather.UserAgent, "NWS_USER_AGENT")
	setDuration(get, &cfg.Weather.CacheTTL, "WEATHER_CACHE_TTL")

	setString(get, &cfg.Sessions.Backend, "SESSION_BACKEND")
	setString(get, &cfg.Sessions.RedisURL, "REDIS_URL")
	setString(get, &cfg.Sessions.S3Endpoint, "SESSION_S3_ENDPOINT")
	setString(get, &cfg.Sessions.S3Bucket, "SESSION_BUCKET")
	setString(get, &cfg.Sessions.S3Region, "SESSION_S3_REGION")
	setString(get, &cfg.Sessions.S3AccessKey, "SESSION_S3_ACCESS_KEY")
	setString(get, &cfg.Sessions.S3SecretKey, "SESSION_S3_SECRET_KEY")
	setBool(get, &cfg.Sessions.S3UseSSL, "SESSION_S3_USE_SSL")
	setDuration(get, &cfg.Sessions.TTL, "SESSION_TTL")

	setString(get, &cfg.Knowledge.PostgresDSN, "DATABASE_URL")
	setString(get, &cfg.Knowledge.Table, "KB_TABLE")
	setInt(get, &cfg.Knowledge.Dimensions, "KB_DIMENSIONS")
	setString(get, &cfg.Knowledge.SeedDir, "KB_SEED_DIR")
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Output) {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("logging.output %q is not one of stdout, stderr", cfg.Logging.Output)
	}
	switch cfg.Model.Provider {
	case "bedrock", "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider %q is not supported", cfg.Model.Provider)
	}
	if cfg.Model.ID == "" {
		return errors.New("model.id is required")
	}
	if cfg.Retry.Attempts < 1 {
		return errors.New("retry.attempts must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Auth.Mode {
	case "none", "cognito", "hs256":
	default:
		return fmt.Errorf("auth.mode %q is not one of none, cognito, hs256", cfg.Auth.Mode)
	}
	switch cfg.Sessions.Backend {
	case "memory", "redis", "s3":
	default:
		return fmt.Errorf("sessions.backend %q is not one of memory, redis, s3", cfg.Sessions.Backend)
	}
	if cfg.WAF.MaxRows < 1 {
		return errors.New("waf.max_rows must be >= 1")
	}
	return nil
}

// Require returns an error naming the first empty value. Arguments are name, value pairs.
func Require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}

func setString(get lookupFunc, dst *string, key string) {
	if v := get(key); v != "" {
		*dst = v
	}
}

func setList(get lookupFunc, dst *[]string, key string) {
	if v := get(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(get lookupFunc, dst *int, key string) {
	if v := get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(get lookupFunc, dst *float64, key string) {
	if v := get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(get lookupFunc, dst *bool, key string) {
	if v := get(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(get lookupFunc, dst *time.Duration, key string) {
	if v := get(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
