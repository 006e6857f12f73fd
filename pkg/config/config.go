package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	QueryPort   int    `mapstructure:"query_port"`
	AdminPort   int    `mapstructure:"admin_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	Host        string `mapstructure:"host"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SecurityConfig struct {
	Windows    []WindowConfig   `mapstructure:"windows"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Sanitizer  SanitizerConfig  `mapstructure:"sanitizer"`
	Patterns   PatternsConfig   `mapstructure:"patterns"`
	Redaction  RedactionConfig  `mapstructure:"redaction"`
}

type WindowConfig struct {
	Name   string        `mapstructure:"name"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type EscalationConfig struct {
	BlockThreshold        int           `mapstructure:"block_threshold"`
	BlockDuration         time.Duration `mapstructure:"block_duration"`
	ExtendedThreshold     int           `mapstructure:"extended_threshold"`
	ExtendedBlockDuration time.Duration `mapstructure:"extended_block_duration"`
}

type SanitizerConfig struct {
	MaxQueryLength  int    `mapstructure:"max_query_length"`
	DisallowedChars string `mapstructure:"disallowed_chars"`
}

// PatternsConfig holds the threat-pattern families. Families are data, not
// code: new attack signatures ship as configuration, not a rebuild.
type PatternsConfig struct {
	InjectionPatterns  []string `mapstructure:"injection_patterns"`
	ExtractionPatterns []string `mapstructure:"extraction_patterns"`
	SQLPatterns        []string `mapstructure:"sql_patterns"`
	ScriptPatterns     []string `mapstructure:"script_patterns"`
}

type RedactionConfig struct {
	Rules           []RedactionRule `mapstructure:"rules"`
	LeakPhrases     []string        `mapstructure:"leak_phrases"`
	FallbackMessage string          `mapstructure:"fallback_message"`
}

type RedactionRule struct {
	Name        string `mapstructure:"name"`
	Pattern     string `mapstructure:"pattern"`
	Placeholder string `mapstructure:"placeholder"`
	Reason      string `mapstructure:"reason"`
}

type ExecutorConfig struct {
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

type EventsConfig struct {
	BufferSize int  `mapstructure:"buffer_size"`
	Persist    bool `mapstructure:"persist"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return fmt.Errorf("could not load config file: %w", err)
	}

	setDefaultValues(&globalConfig)

	if err := Validate(&globalConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
		}
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(out, decodeHook); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

func setDefaultValues(cfg *Config) {
	if cfg.Server.QueryPort == 0 {
		cfg.Server.QueryPort = 8080
	}
	if cfg.Server.AdminPort == 0 {
		cfg.Server.AdminPort = 8081
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if len(cfg.Security.Windows) == 0 {
		cfg.Security.Windows = []WindowConfig{
			{Name: "minute", Limit: 20, Window: time.Minute},
			{Name: "hour", Limit: 200, Window: time.Hour},
			{Name: "day", Limit: 1000, Window: 24 * time.Hour},
		}
	}
	if cfg.Security.Escalation.BlockThreshold == 0 {
		cfg.Security.Escalation.BlockThreshold = 3
	}
	if cfg.Security.Escalation.BlockDuration == 0 {
		cfg.Security.Escalation.BlockDuration = time.Hour
	}
	if cfg.Security.Escalation.ExtendedThreshold == 0 {
		cfg.Security.Escalation.ExtendedThreshold = 10
	}
	if cfg.Security.Escalation.ExtendedBlockDuration == 0 {
		cfg.Security.Escalation.ExtendedBlockDuration = 24 * time.Hour
	}
	if cfg.Security.Sanitizer.MaxQueryLength == 0 {
		cfg.Security.Sanitizer.MaxQueryLength = 500
	}
	if cfg.Security.Sanitizer.DisallowedChars == "" {
		cfg.Security.Sanitizer.DisallowedChars = "<>{}`\\"
	}
	if cfg.Executor.Model == "" {
		cfg.Executor.Model = "gpt-4o-mini"
	}
	if cfg.Executor.SystemPrompt == "" {
		cfg.Executor.SystemPrompt = "You are a fantasy basketball assistant. " +
			"Answer questions about NBA players, matchups and rosters."
	}
	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = 30 * time.Second
	}
	if cfg.Executor.MaxFailures == 0 {
		cfg.Executor.MaxFailures = 5
	}
	if cfg.Executor.ResetTimeout == 0 {
		cfg.Executor.ResetTimeout = 30 * time.Second
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1000
	}
}

// Validate refuses to start with an inconsistent ruleset: bad regexes,
// non-positive thresholds, or malformed durations are fatal.
func Validate(cfg *Config) error {
	if len(cfg.Security.Windows) == 0 {
		return fmt.Errorf("at least one rate-limit window must be configured")
	}
	for _, w := range cfg.Security.Windows {
		if w.Name == "" {
			return fmt.Errorf("rate-limit window requires a name")
		}
		if w.Limit <= 0 {
			return fmt.Errorf("rate-limit window %q requires a positive limit", w.Name)
		}
		if w.Window <= 0 {
			return fmt.Errorf("rate-limit window %q requires a positive duration", w.Name)
		}
	}

	esc := cfg.Security.Escalation
	if esc.BlockThreshold <= 0 || esc.ExtendedThreshold <= 0 {
		return fmt.Errorf("escalation thresholds must be positive")
	}
	if esc.ExtendedThreshold <= esc.BlockThreshold {
		return fmt.Errorf("extended threshold must exceed block threshold")
	}
	if esc.BlockDuration <= 0 || esc.ExtendedBlockDuration <= 0 {
		return fmt.Errorf("escalation block durations must be positive")
	}

	if cfg.Security.Sanitizer.MaxQueryLength <= 0 {
		return fmt.Errorf("sanitizer max query length must be positive")
	}

	for _, family := range [][]string{
		cfg.Security.Patterns.InjectionPatterns,
		cfg.Security.Patterns.ExtractionPatterns,
		cfg.Security.Patterns.SQLPatterns,
		cfg.Security.Patterns.ScriptPatterns,
	} {
		for _, p := range family {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid threat pattern %q: %w", p, err)
			}
		}
	}

	for _, rule := range cfg.Security.Redaction.Rules {
		if rule.Name == "" || rule.Pattern == "" {
			return fmt.Errorf("redaction rules require a name and pattern")
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", rule.Pattern, err)
		}
	}

	if cfg.Executor.Timeout <= 0 {
		return fmt.Errorf("executor timeout must be positive")
	}
	if cfg.Executor.ResetTimeout <= 0 {
		return fmt.Errorf("executor reset timeout must be positive")
	}

	return nil
}

func GetConfig() *Config {
	return &globalConfig
}
