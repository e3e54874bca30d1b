// Package appconfig loads the daemon's configuration: the store path,
// queue and failover settings, the security policy, channel tokens, and
// the handful of other knobs the embedded core needs at startup.
//
// It follows the same env-expansion-then-YAML pattern as the larger
// gateway config loader, scaled down to this daemon's much smaller
// surface: no $include merging, no JSON5, no multi-platform channel
// schema.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/nexuscore/internal/failover"
	"github.com/agentcore/nexuscore/pkg/models"
)

// Config is the full set of knobs nexuscored needs to wire its
// components together.
type Config struct {
	// StorePath is the path to the embedded KV store's database file.
	// ":memory:" opens a transient in-memory store.
	StorePath string `yaml:"store_path"`

	Queue    QueueConfig        `yaml:"queue"`
	Failover FailoverConfig     `yaml:"failover"`
	Security models.SecurityPolicy `yaml:"security"`
	Channels ChannelsConfig     `yaml:"channels"`
	Cron     CronConfig         `yaml:"cron"`
	Memory   MemoryConfig       `yaml:"memory"`
	Metrics  MetricsConfig      `yaml:"metrics"`
}

// QueueConfig controls worker polling and maximum sub-agent parallelism.
type QueueConfig struct {
	MaxParallel  int           `yaml:"max_parallel"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// FailoverConfig is the YAML shape for a failover.FailoverConfig plus
// the retry knobs layered on top of it.
type FailoverConfig struct {
	Primary          string   `yaml:"primary"`
	Fallbacks        []string `yaml:"fallbacks"`
	CooldownSeconds  int      `yaml:"cooldown_seconds"`
	FailureThreshold int      `yaml:"failure_threshold"`
	AutoRecover      bool     `yaml:"auto_recover"`
	MaxRetries       int      `yaml:"max_retries"`
}

// ToOrchestratorConfig converts the YAML shape into failover.FailoverConfig.
func (f FailoverConfig) ToOrchestratorConfig() failover.FailoverConfig {
	return failover.FailoverConfig{
		Primary:          f.Primary,
		Fallbacks:        f.Fallbacks,
		CooldownSeconds:  f.CooldownSeconds,
		FailureThreshold: f.FailureThreshold,
		AutoRecover:      f.AutoRecover,
	}
}

// ToRetryConfig converts the YAML shape into a failover.RetryConfig,
// overriding the default max-retries if one was set.
func (f FailoverConfig) ToRetryConfig() failover.RetryConfig {
	rc := failover.DefaultRetryConfig()
	if f.MaxRetries > 0 {
		rc.MaxRetries = f.MaxRetries
	}
	return rc
}

// ChannelTokenConfig holds the credential env-var name for one channel.
// The var itself is resolved (and the secret value kept out of the
// loaded file) by os.ExpandEnv at load time, so this struct only ever
// carries an already-expanded token.
type ChannelTokenConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// ChannelsConfig lists which channels are configured and their default
// conversation bindings for broadcast.
type ChannelsConfig struct {
	Telegram           ChannelTokenConfig `yaml:"telegram"`
	Discord            ChannelTokenConfig `yaml:"discord"`
	Slack              ChannelTokenConfig `yaml:"slack"`
	DefaultConversation map[string]string `yaml:"default_conversation"`
}

// CronConfig controls the cron scheduler's polling cadence.
type CronConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// MemoryConfig overrides the chunker's defaults.
type MemoryConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	MinChunk  int `yaml:"min_chunk"`
}

// MetricsConfig controls the Prometheus metrics HTTP listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a minimal, self-consistent configuration suitable for
// local development: an on-disk store next to the working directory, a
// single worker, no channels, no security restrictions beyond requiring
// approval for nothing.
func Default() *Config {
	return &Config{
		StorePath: "nexuscore.db",
		Queue: QueueConfig{
			MaxParallel:  4,
			PollInterval: 2 * time.Second,
		},
		Failover: FailoverConfig{
			CooldownSeconds:  30,
			FailureThreshold: 3,
			AutoRecover:      true,
			MaxRetries:       3,
		},
		Security: models.SecurityPolicy{
			DefaultAction:   models.PolicyActionAllow,
			ApprovalTimeout: 5 * time.Minute,
		},
		Cron: CronConfig{
			TickInterval: 30 * time.Second,
		},
		Memory: MemoryConfig{
			ChunkSize: 1600,
			Overlap:   320,
			MinChunk:  200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load reads path, expands ${VAR}/$VAR references against the process
// environment, and decodes the result over Default(). An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first structural problem found, if any.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if c.Queue.MaxParallel <= 0 {
		return fmt.Errorf("queue.max_parallel must be positive")
	}
	if c.Failover.Primary == "" {
		return fmt.Errorf("failover.primary model is required")
	}
	switch c.Security.DefaultAction {
	case "", models.PolicyActionAllow, models.PolicyActionBlock, models.PolicyActionRequireApproval:
	default:
		return fmt.Errorf("security.default_action %q is not a recognized policy action", c.Security.DefaultAction)
	}
	return nil
}
