package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, "bedrock", cfg.Model.Provider)
	assert.Equal(t, 60*time.Second, cfg.Retry.Delay)
	assert.Equal(t, "trades.executed", cfg.Trades.Subject)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFrom_Precedence(t *testing.T) {
	yamlPath := writeFile(t, "agents.yaml", `
logging:
  level: debug
model:
  id: amazon.nova-lite-v1:0
  max_tokens: 512
retry:
  delay: 30s
a2a:
  market_analysis_url: http://yaml-market
waf:
  table: yaml_table
`)
	envPath := writeFile(t, ".env", "WAF_TABLE=dotenv_table\nMARKET_ANALYSIS_AGENT_URL=http://dotenv-market\nCORS_ORIGINS=https://a.example, https://b.example\n")
	t.Setenv("MARKET_ANALYSIS_AGENT_URL", "http://env-market")
	t.Setenv("PORT", "9090")

	cfg, err := LoadFrom(yamlPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "amazon.nova-lite-v1:0", cfg.Model.ID)
	assert.Equal(t, 512, cfg.Model.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Retry.Delay)
	assert.Equal(t, "dotenv_table", cfg.WAF.Table, ".env overrides yaml")
	assert.Equal(t, "http://env-market", cfg.A2A.MarketAnalysisURL, "environment overrides .env")
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadFrom_Validation(t *testing.T) {
	cases := map[string]string{
		"MODEL_PROVIDER":  "vertex",
		"AUTH_MODE":       "basic",
		"SESSION_BACKEND": "dynamo",
		"LOG_LEVEL":       "trace",
		"LOG_OUTPUT":      "syslog",
		"RETRY_ATTEMPTS":  "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := LoadFrom("", "")
			require.Error(t, err)
		})
	}
}

func TestLoadFrom_BadYAML(t *testing.T) {
	_, err := LoadFrom(writeFile(t, "bad.yaml", "model: [\n"), "")
	require.Error(t, err)
}

func TestRequire(t *testing.T) {
	require.NoError(t, Require("a", "x", "b", "y"))
	err := Require("a", "x", "trades.table", " ")
	require.EqualError(t, err, "trades.table is required")
}

type fakeSecrets struct {
	values map[string]string
	calls  int
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.GitHub.Token = "secretsmanager://pr-review#github_token"
	cfg.GitHub.WebhookSecret = "secretsmanager://pr-review#webhook_secret"
	cfg.Auth.HS256Secret = "secretsmanager://dev-signing-key"
	cfg.Server.CORSOrigins = []string{"secretsmanager://pr-review#origin"}
	require.True(t, HasSecretRefs(&cfg))

	api := &fakeSecrets{values: map[string]string{
		"pr-review":       `{"github_token":"ghp_x","webhook_secret":"whsec","origin":"https://app.example"}`,
		"dev-signing-key": "plain-value",
	}}
	require.NoError(t, ResolveSecrets(context.Background(), &cfg, api))
	assert.Equal(t, "ghp_x", cfg.GitHub.Token)
	assert.Equal(t, "whsec", cfg.GitHub.WebhookSecret)
	assert.Equal(t, "plain-value", cfg.Auth.HS256Secret)
	assert.Equal(t, "https://app.example", cfg.Server.CORSOrigins[0])
	assert.Equal(t, 2, api.calls, "each secret fetched once")
	assert.False(t, HasSecretRefs(&cfg))
}

func TestResolveSecrets_Errors(t *testing.T) {
	cfg := Defaults()
	cfg.GitHub.Token = "secretsmanager://pr-review#missing"
	err := ResolveSecrets(context.Background(), &cfg, &fakeSecrets{values: map[string]string{"pr-review": `{}`}})
	require.ErrorContains(t, err, "github.token")

	cfg.GitHub.Token = "secretsmanager://absent"
	require.Error(t, ResolveSecrets(context.Background(), &cfg, &fakeSecrets{}))

	cfg.GitHub.Token = "secretsmanager://x"
	require.Error(t, ResolveSecrets(context.Background(), &cfg, nil))
}
