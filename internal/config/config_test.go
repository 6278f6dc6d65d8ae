package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampede/internal/scenario"
	"stampede/internal/vuser"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fullFlowYAML = `
base_url: http://localhost:8080
scenario:
  executor: per-vu-iterations
  vus: 2000
  iterations: 1
  max_duration: 5m
workflow:
  flow: purchase
  token_field: token
  poll_interval: 5s
  max_polls: 60
  purchase_policy: retry
thresholds:
  - metric: http_req_failed
    expr: rate<0.05
  - metric: http_req_duration
    expr: p(95)<3000
`

func TestLoad_FullFlow(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullFlowYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 2000, cfg.Scenario.VUs)
	assert.Equal(t, 5*time.Minute, cfg.Scenario.MaxDuration)
	assert.Equal(t, 5*time.Second, cfg.Workflow.PollInterval)
	assert.Equal(t, 60, cfg.Workflow.MaxPolls)
	require.Len(t, cfg.Thresholds, 2)
	assert.Equal(t, "rate<0.05", cfg.Thresholds[0].Expr)

	opts := cfg.ScenarioOptions()
	assert.Equal(t, scenario.ModePerVUIterations, opts.Mode)
	assert.Equal(t, 2000, opts.VUs)

	uc := cfg.UserConfig()
	assert.Equal(t, vuser.FlowPurchase, uc.Flow)
	assert.Equal(t, vuser.PurchaseRetry, uc.Purchase)
	assert.True(t, uc.SeatsAuth, "seats_auth defaults on")
}

func TestLoad_DefaultsApplyToAbsentKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
base_url: http://localhost:8080
scenario:
  executor: constant-vus
  vus: 500
  duration: 10m
workflow:
  flow: enter
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "token", cfg.Workflow.TokenField)
	assert.Equal(t, 5*time.Second, cfg.Workflow.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Workflow.SeatsAuth)
}

func TestLoad_ExplicitFalseOverridesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
base_url: http://localhost:8080
scenario:
  executor: per-vu-iterations
  vus: 5000
workflow:
  token_field: uuid
  poll_interval: 2s
  max_polls: 150
  seats_auth: false
  purchase_policy: single
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.Workflow.SeatsAuth)
	assert.Equal(t, "uuid", cfg.Workflow.TokenField)
	assert.Equal(t, 2*time.Second, cfg.Workflow.PollInterval)
	assert.Equal(t, 150, cfg.Workflow.MaxPolls)
	assert.Equal(t, vuser.PurchaseSingle, cfg.UserConfig().Purchase)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "base_url: [unclosed"))
	require.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base URL", func(c *Config) { c.BaseURL = "" }},
		{"bad base URL", func(c *Config) { c.BaseURL = "not a url" }},
		{"zero vus", func(c *Config) { c.Scenario.VUs = 0 }},
		{"negative start rate", func(c *Config) { c.Scenario.StartRate = -1 }},
		{"unknown executor", func(c *Config) { c.Scenario.Executor = "ramping-vus" }},
		{"zero iterations", func(c *Config) { c.Scenario.Iterations = 0 }},
		{"zero max duration", func(c *Config) { c.Scenario.MaxDuration = 0 }},
		{"unknown flow", func(c *Config) { c.Workflow.Flow = "browse" }},
		{"zero poll interval", func(c *Config) { c.Workflow.PollInterval = 0 }},
		{"zero max polls", func(c *Config) { c.Workflow.MaxPolls = 0 }},
		{"empty token field", func(c *Config) { c.Workflow.TokenField = "" }},
		{"unknown purchase policy", func(c *Config) { c.Workflow.Purchase = "greedy" }},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"bad threshold expr", func(c *Config) {
			c.Thresholds[0].Expr = "median<10"
		}},
		{"threshold without metric", func(c *Config) {
			c.Thresholds[0].Metric = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, fullFlowYAML))
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ConstantVUsNeedsDuration(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
base_url: http://localhost:8080
scenario:
  executor: constant-vus
  vus: 10
  duration: 0s
`))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
