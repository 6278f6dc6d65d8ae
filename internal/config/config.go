// Package config handles YAML run configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stampede/internal/scenario"
	"stampede/internal/threshold"
	"stampede/internal/vuser"
)

// Config is the root configuration for one run. Immutable once loaded.
type Config struct {
	BaseURL        string           `yaml:"base_url"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	Scenario       ScenarioConfig   `yaml:"scenario"`
	Workflow       WorkflowConfig   `yaml:"workflow"`
	Thresholds     []threshold.Rule `yaml:"thresholds"`
}

// ScenarioConfig selects and parameterizes the scheduling mode.
type ScenarioConfig struct {
	Executor    string        `yaml:"executor"`
	VUs         int           `yaml:"vus"`
	Duration    time.Duration `yaml:"duration"`
	Iterations  int           `yaml:"iterations"`
	MaxDuration time.Duration `yaml:"max_duration"`
	StartRate   int           `yaml:"start_rate"`
}

// WorkflowConfig parameterizes the virtual-user state machine.
type WorkflowConfig struct {
	Flow         string        `yaml:"flow"`
	TokenField   string        `yaml:"token_field"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
	SeatsAuth    bool          `yaml:"seats_auth"`
	Purchase     string        `yaml:"purchase_policy"`
}

// Default returns the configuration baseline; Load unmarshals on top of it,
// so keys absent from the file keep these values.
func Default() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		Scenario: ScenarioConfig{
			Executor:    string(scenario.ModePerVUIterations),
			VUs:         1,
			Iterations:  1,
			MaxDuration: 10 * time.Minute,
			Duration:    time.Minute,
		},
		Workflow: WorkflowConfig{
			Flow:         string(vuser.FlowPurchase),
			TokenField:   "token",
			PollInterval: 5 * time.Second,
			MaxPolls:     60,
			SeatsAuth:    true,
			Purchase:     string(vuser.PurchaseRetry),
		},
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// Validate fails fast on run-level configuration errors, before any virtual
// user starts.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not a valid URL", c.BaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.Scenario.VUs < 1 {
		return fmt.Errorf("scenario.vus must be >= 1")
	}
	if c.Scenario.StartRate < 0 {
		return fmt.Errorf("scenario.start_rate must be >= 0")
	}
	switch scenario.Mode(c.Scenario.Executor) {
	case scenario.ModeConstantVUs:
		if c.Scenario.Duration <= 0 {
			return fmt.Errorf("scenario.duration must be positive for %s", c.Scenario.Executor)
		}
	case scenario.ModePerVUIterations:
		if c.Scenario.Iterations < 1 {
			return fmt.Errorf("scenario.iterations must be >= 1")
		}
		if c.Scenario.MaxDuration <= 0 {
			return fmt.Errorf("scenario.max_duration must be positive")
		}
	default:
		return fmt.Errorf("scenario.executor must be %q or %q, got %q",
			scenario.ModeConstantVUs, scenario.ModePerVUIterations, c.Scenario.Executor)
	}

	switch vuser.Flow(c.Workflow.Flow) {
	case vuser.FlowEnter:
	case vuser.FlowPoll, vuser.FlowPurchase:
		if c.Workflow.PollInterval <= 0 {
			return fmt.Errorf("workflow.poll_interval must be positive")
		}
		if c.Workflow.MaxPolls < 1 {
			return fmt.Errorf("workflow.max_polls must be >= 1")
		}
	default:
		return fmt.Errorf("workflow.flow must be one of %q, %q, %q",
			vuser.FlowEnter, vuser.FlowPoll, vuser.FlowPurchase)
	}
	if c.Workflow.TokenField == "" {
		return fmt.Errorf("workflow.token_field is required")
	}
	switch vuser.PurchasePolicy(c.Workflow.Purchase) {
	case vuser.PurchaseSingle, vuser.PurchaseRetry:
	default:
		return fmt.Errorf("workflow.purchase_policy must be %q or %q",
			vuser.PurchaseSingle, vuser.PurchaseRetry)
	}

	for _, rule := range c.Thresholds {
		if rule.Metric == "" {
			return fmt.Errorf("threshold rule missing metric")
		}
		if err := threshold.ParseExpr(rule.Expr); err != nil {
			return fmt.Errorf("threshold for %s: %w", rule.Metric, err)
		}
	}
	return nil
}

// ScenarioOptions maps the scenario section onto executor options.
func (c *Config) ScenarioOptions() scenario.Options {
	return scenario.Options{
		Mode:        scenario.Mode(c.Scenario.Executor),
		VUs:         c.Scenario.VUs,
		Duration:    c.Scenario.Duration,
		Iterations:  c.Scenario.Iterations,
		MaxDuration: c.Scenario.MaxDuration,
		StartRate:   c.Scenario.StartRate,
	}
}

// UserConfig maps the workflow section onto the virtual-user config.
func (c *Config) UserConfig() vuser.Config {
	return vuser.Config{
		Flow:         vuser.Flow(c.Workflow.Flow),
		TokenField:   c.Workflow.TokenField,
		PollInterval: c.Workflow.PollInterval,
		MaxPolls:     c.Workflow.MaxPolls,
		SeatsAuth:    c.Workflow.SeatsAuth,
		Purchase:     vuser.PurchasePolicy(c.Workflow.Purchase),
	}
}
