package config

import (
	"flag"
	"os"

	"github.com/spf13/viper"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultAuditDir        = "/var/lib/taskguard/audit"
	defaultMaxFileSizeMB   = 10
	defaultRetentionDays   = 365
	defaultHistoryDB       = "/var/lib/taskguard/history.db"
	defaultCooldownMinutes = 10
)

// Channel mirrors one [[channels]] table in the config file.
type Channel struct {
	ID          string `mapstructure:"id"`
	Type        string `mapstructure:"type"`
	Enabled     bool   `mapstructure:"enabled"`
	Target      string `mapstructure:"target"`
	MinSeverity string `mapstructure:"min_severity"`
}

// Thresholds drive the built-in alert rules.
type Thresholds struct {
	ErrorRate       float64 `mapstructure:"error_rate"`
	MeanDurationMs  int     `mapstructure:"mean_duration_ms"`
	MemoryPercent   float64 `mapstructure:"memory_percent"`
	SecurityEvents  int64   `mapstructure:"security_events"`
	LoginFailures   int     `mapstructure:"login_failures"`
	CooldownMinutes int     `mapstructure:"cooldown_minutes"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level"`

	AuditDir       string `mapstructure:"audit_dir"`
	MaxFileSizeMB  int64  `mapstructure:"max_file_size_mb"`
	RetentionDays  int    `mapstructure:"retention_days"`
	Compress       bool   `mapstructure:"compress"`
	SigningKeyPath string `mapstructure:"signing_key"`
	VerifyKeyPath  string `mapstructure:"verify_key"`

	HistoryEnabled bool   `mapstructure:"history"`
	HistoryDB      string `mapstructure:"history_db"`

	Channels   []Channel  `mapstructure:"channels"`
	Thresholds Thresholds `mapstructure:"thresholds"`
}

func defaults() map[string]any {
	return map[string]any{
		"log_level":        DefaultLogLevel,
		"audit_dir":        defaultAuditDir,
		"max_file_size_mb": defaultMaxFileSizeMB,
		"retention_days":   defaultRetentionDays,
		"compress":         true,
		"history":          false,
		"history_db":       defaultHistoryDB,

		"thresholds.error_rate":       0.25,
		"thresholds.mean_duration_ms": 30000,
		"thresholds.memory_percent":   90.0,
		"thresholds.security_events":  10,
		"thresholds.login_failures":   3,
		"thresholds.cooldown_minutes": defaultCooldownMinutes,
	}
}

// Load reads configuration from flags, an optional TOML file and
// defaults. The file is looked up via TASKGUARD_CONFIG, then /etc.
func Load() (*Config, error) {
	errFactory := errors.New()

	fs := flag.NewFlagSet("taskguard", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warning, error)")
	auditDir := fs.String("audit-dir", "", "Audit ledger directory")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigType("toml")
	switch {
	case *configPath != "":
		v.SetConfigFile(*configPath)
	case os.Getenv("TASKGUARD_CONFIG") != "":
		v.SetConfigFile(os.Getenv("TASKGUARD_CONFIG"))
	default:
		v.SetConfigName("taskguard")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	}

	// Command line flags override file values.
	if *logLevel != "" {
		v.Set("log_level", *logLevel)
	}
	if *auditDir != "" {
		v.Set("audit_dir", *auditDir)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.AuditDir == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "audit_dir must not be empty")
	}
	if c.MaxFileSizeMB <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max_file_size_mb must be positive")
	}
	if c.RetentionDays <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "retention_days must be positive")
	}
	if c.HistoryEnabled && c.HistoryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history_db must be set when history is enabled")
	}

	return nil
}
