package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aevon-lab/rules-engine/internal/core/rules"
)

const (
	ModeRealtime = "realtime"
	ModeBatch    = "batch"

	SourcePostgres = "postgres"
	SourceCSV      = "csv"
)

// Config represents the top-level application config plus the loaded rules.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Rules     RulesConfig     `koanf:"rules"`
	Execution ExecutionConfig `koanf:"execution"`
	Buffer    BufferConfig    `koanf:"buffer"`
	Binding   BindingConfig   `koanf:"binding"`

	// RuleLoading is populated by Load after parsing rule files.
	RuleLoading RuleLoadingConfig `koanf:"-"`
}

type ServerConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Enabled      bool   `koanf:"enabled"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
	PageSize     int    `koanf:"page_size"`
}

type RulesConfig struct {
	Dir          string `koanf:"dir"`
	TwinsPath    string `koanf:"twins_path"`
	RequireRules bool   `koanf:"require_rules"`
}

type ExecutionConfig struct {
	Mode           string `koanf:"mode"`   // realtime | batch
	Source         string `koanf:"source"` // postgres | csv
	CSVPath        string `koanf:"csv_path"`
	RuleID         string `koanf:"rule_id"`
	Start          string `koanf:"start"` // RFC3339; realtime mode replays from here before serving
	End            string `koanf:"end"`
	WorkerCount    int    `koanf:"worker_count"`
	QueueSize      int    `koanf:"queue_size"`
	FeedSize       int    `koanf:"feed_size"`
	FlushInterval  string `koanf:"flush_interval"`
	FlushBatchSize int    `koanf:"flush_batch_size"`
	LimitsEvery    string `koanf:"limits_every"`
}

type BufferConfig struct {
	MaxCount         int     `koanf:"max_count"`
	Compression      float64 `koanf:"compression"`
	ApplyCompression bool    `koanf:"apply_compression"`
	MaxAge           string  `koanf:"max_age"`
}

type BindingConfig struct {
	Hops        int `koanf:"hops"`
	Top         int `koanf:"top"`
	Concurrency int `koanf:"concurrency"`
}

type RuleLoadingConfig struct {
	Dir     string
	Rules   []rules.Rule
	Globals []rules.GlobalVariable
}

// ParseDuration extends time.ParseDuration with a whole-day "d" suffix,
// e.g. "365d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// FlushEvery is the parsed flush interval. Only valid after Validate.
func (c ExecutionConfig) FlushEvery() time.Duration {
	d, _ := ParseDuration(c.FlushInterval)
	return d
}

// LimitsPeriod is the parsed limits interval. Only valid after Validate.
func (c ExecutionConfig) LimitsPeriod() time.Duration {
	d, _ := ParseDuration(c.LimitsEvery)
	return d
}

// Window returns the batch replay window. Zero bounds are open.
func (c ExecutionConfig) Window() (start, end time.Time, err error) {
	if c.Start != "" {
		if start, err = time.Parse(time.RFC3339, c.Start); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid execution.start %q: %w", c.Start, err)
		}
	}
	if c.End != "" {
		if end, err = time.Parse(time.RFC3339, c.End); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid execution.end %q: %w", c.End, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("execution.end must be after execution.start")
	}
	return start, end, nil
}

// MaxAgeDuration is the parsed buffer age limit. Only valid after Validate.
func (c BufferConfig) MaxAgeDuration() time.Duration {
	d, _ := ParseDuration(c.MaxAge)
	return d
}

func (c *Config) Validate() error {
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
		}
		if strings.TrimSpace(c.Server.Host) == "" {
			return fmt.Errorf("server.host is required")
		}
		if c.Server.MaxBodySizeMB <= 0 {
			return fmt.Errorf("server.max_body_size_mb must be > 0")
		}
		if c.Server.Mode != "debug" && c.Server.Mode != "release" {
			return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
		}
	}

	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	}

	if strings.TrimSpace(c.Rules.Dir) == "" {
		return fmt.Errorf("rules.dir is required")
	}
	if strings.TrimSpace(c.Rules.TwinsPath) == "" {
		return fmt.Errorf("rules.twins_path is required")
	}
	if _, err := os.Stat(c.Rules.TwinsPath); err != nil {
		return fmt.Errorf("rules.twins_path %q is not accessible: %w", c.Rules.TwinsPath, err)
	}

	switch c.Execution.Mode {
	case ModeRealtime, ModeBatch:
	default:
		return fmt.Errorf("invalid execution.mode %q (must be realtime or batch)", c.Execution.Mode)
	}
	switch c.Execution.Source {
	case SourcePostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("execution.source postgres requires database.enabled")
		}
	case SourceCSV:
		if strings.TrimSpace(c.Execution.CSVPath) == "" {
			return fmt.Errorf("execution.csv_path is required for source csv")
		}
	default:
		return fmt.Errorf("invalid execution.source %q (must be postgres or csv)", c.Execution.Source)
	}
	if _, _, err := c.Execution.Window(); err != nil {
		return err
	}
	if c.Execution.WorkerCount <= 0 {
		return fmt.Errorf("execution.worker_count must be > 0")
	}
	if c.Execution.QueueSize <= 0 {
		return fmt.Errorf("execution.queue_size must be > 0")
	}
	if c.Execution.FeedSize < 0 {
		return fmt.Errorf("execution.feed_size must be >= 0")
	}
	if err := positiveDuration("execution.flush_interval", c.Execution.FlushInterval); err != nil {
		return err
	}
	if c.Execution.FlushBatchSize <= 0 {
		return fmt.Errorf("execution.flush_batch_size must be > 0")
	}
	if err := positiveDuration("execution.limits_every", c.Execution.LimitsEvery); err != nil {
		return err
	}

	if c.Buffer.MaxCount < 0 {
		return fmt.Errorf("buffer.max_count must be >= 0")
	}
	if c.Buffer.Compression < 0 || c.Buffer.Compression >= 1 {
		return fmt.Errorf("buffer.compression must be in [0, 1)")
	}
	if err := positiveDuration("buffer.max_age", c.Buffer.MaxAge); err != nil {
		return err
	}

	if c.Binding.Hops <= 0 {
		return fmt.Errorf("binding.hops must be > 0")
	}
	if c.Binding.Top <= 0 {
		return fmt.Errorf("binding.top must be > 0")
	}
	if c.Binding.Concurrency <= 0 {
		return fmt.Errorf("binding.concurrency must be > 0")
	}
	return nil
}

func positiveDuration(key, value string) error {
	d, err := ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	return nil
}

// Load parses config from file + env, validates it, then loads and validates rules.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.enabled":             true,
		"server.port":                8080,
		"server.host":                "0.0.0.0",
		"server.max_body_size_mb":    1,
		"server.mode":                "release",
		"database.enabled":           true,
		"database.dsn":               "postgres://localhost:5432/rules?sslmode=disable",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    25,
		"database.auto_migrate":      true,
		"database.page_size":         5000,
		"rules.dir":                  "./config/rules",
		"rules.twins_path":           "./config/twins.yaml",
		"rules.require_rules":        true,
		"execution.mode":             ModeRealtime,
		"execution.source":           SourcePostgres,
		"execution.csv_path":         "",
		"execution.rule_id":          "",
		"execution.start":            "",
		"execution.end":              "",
		"execution.worker_count":     4,
		"execution.queue_size":       1024,
		"execution.feed_size":        4096,
		"execution.flush_interval":   "30s",
		"execution.flush_batch_size": 500,
		"execution.limits_every":     "1d",
		"buffer.max_count":           2500,
		"buffer.compression":         0.0,
		"buffer.apply_compression":   true,
		"buffer.max_age":             "365d",
		"binding.hops":               5,
		"binding.top":                1001,
		"binding.concurrency":        8,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// RULES_EXECUTION__WORKER_COUNT=8 overrides execution.worker_count
	if err := k.Load(env.Provider("RULES_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RULES_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := rules.NewFileSystemRuleRepository(cfg.Rules.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	loaded := repo.GetRules()
	if cfg.Rules.RequireRules && len(loaded) == 0 {
		return nil, fmt.Errorf("no rules found in %q", cfg.Rules.Dir)
	}

	cfg.RuleLoading = RuleLoadingConfig{
		Dir:     cfg.Rules.Dir,
		Rules:   loaded,
		Globals: repo.Globals(),
	}

	return &cfg, nil
}
