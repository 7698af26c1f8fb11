// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Known values for the pluggable components.
const (
	DriverCDP        = "cdp"
	DriverPlaywright = "playwright"
	DriverRod        = "rod"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Translator() TranslatorConfig
	Normalizer() NormalizerConfig
	Browser() BrowserConfig
	Execution() ExecutionConfig
	Retry() RetryConfig
	Evidence() EvidenceConfig
	Operator() OperatorConfig

	// Translator Setters
	SetTranslatorProvider(string)
	SetTranslatorModel(string)

	// Browser Setters
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)

	// Retry Setters
	SetRetryMaxRetries(int)
	SetRetryAutoApprove(bool)

	// Evidence Setters
	SetEvidenceDir(string)
}

// Config holds the entire application configuration. The exported fields are
// what viper unmarshals into; consumers go through the Interface getters.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	TranslatorCfg TranslatorConfig `mapstructure:"translator" yaml:"translator"`
	NormalizerCfg NormalizerConfig `mapstructure:"normalizer" yaml:"normalizer"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	ExecutionCfg  ExecutionConfig  `mapstructure:"execution" yaml:"execution"`
	RetryCfg      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	EvidenceCfg   EvidenceConfig   `mapstructure:"evidence" yaml:"evidence"`
	OperatorCfg   OperatorConfig   `mapstructure:"operator" yaml:"operator"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Translator() TranslatorConfig { return c.TranslatorCfg }
func (c *Config) Normalizer() NormalizerConfig { return c.NormalizerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Execution() ExecutionConfig   { return c.ExecutionCfg }
func (c *Config) Retry() RetryConfig           { return c.RetryCfg }
func (c *Config) Evidence() EvidenceConfig     { return c.EvidenceCfg }
func (c *Config) Operator() OperatorConfig     { return c.OperatorCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTranslatorProvider(p string) { c.TranslatorCfg.Provider = p }
func (c *Config) SetTranslatorModel(m string)    { c.TranslatorCfg.Model = m }

func (c *Config) SetBrowserDriver(d string) { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }

func (c *Config) SetRetryMaxRetries(n int)  { c.RetryCfg.MaxRetries = n }
func (c *Config) SetRetryAutoApprove(b bool) { c.RetryCfg.AutoApprove = b }

func (c *Config) SetEvidenceDir(d string) { c.EvidenceCfg.Dir = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// TranslatorConfig configures the LLM that turns a task into a routine.
type TranslatorConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	Proxy             string        `mapstructure:"proxy" yaml:"proxy"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	AttachScreenshot  bool          `mapstructure:"attach_screenshot" yaml:"attach_screenshot"`
}

// RewriteRule is a literal substitution applied to generated routines.
type RewriteRule struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// NormalizerConfig tunes how raw generations are shaped into routines.
type NormalizerConfig struct {
	MinLength int           `mapstructure:"min_length" yaml:"min_length"`
	Rewrites  []RewriteRule `mapstructure:"rewrites" yaml:"rewrites"`
}

// ViewportConfig is the initial window size of new pages.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig holds settings for the automated browser.
type BrowserConfig struct {
	Driver                 string         `mapstructure:"driver" yaml:"driver"`
	Headless               bool           `mapstructure:"headless" yaml:"headless"`
	Args                   []string       `mapstructure:"args" yaml:"args"`
	Viewport               ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout          time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	FreshSessionPerAttempt bool           `mapstructure:"fresh_session_per_attempt" yaml:"fresh_session_per_attempt"`
}

// ExecutionConfig bounds how long a routine may run.
type ExecutionConfig struct {
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	RoutineTimeout time.Duration `mapstructure:"routine_timeout" yaml:"routine_timeout"`
}

// RetryConfig controls the evidence-guided retry loop.
type RetryConfig struct {
	MaxRetries  int  `mapstructure:"max_retries" yaml:"max_retries"`
	AutoApprove bool `mapstructure:"auto_approve" yaml:"auto_approve"`
}

// EvidenceConfig controls where failure artifacts are written.
type EvidenceConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// PerAttempt keeps every attempt's screenshot. When false a single
	// error_screenshot.png is overwritten on each failure.
	PerAttempt bool `mapstructure:"per_attempt" yaml:"per_attempt"`
}

// OperatorConfig controls the human-in-the-loop prompts.
type OperatorConfig struct {
	Interactive      bool `mapstructure:"interactive" yaml:"interactive"`
	PauseBeforeClose bool `mapstructure:"pause_before_close" yaml:"pause_before_close"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Translator --
	v.SetDefault("translator.provider", ProviderGemini)
	v.SetDefault("translator.model", "gemini-2.5-flash")
	v.SetDefault("translator.proxy", "")
	v.SetDefault("translator.timeout", "60s")
	v.SetDefault("translator.temperature", 0.2)
	v.SetDefault("translator.max_tokens", 2048)
	v.SetDefault("translator.requests_per_minute", 30)
	v.SetDefault("translator.attach_screenshot", true)

	// -- Normalizer --
	v.SetDefault("normalizer.min_length", 30)

	// -- Browser --
	v.SetDefault("browser.driver", DriverCDP)
	// A visible window is what the operator watches.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.fresh_session_per_attempt", false)

	// -- Execution --
	v.SetDefault("execution.action_timeout", "30s")
	v.SetDefault("execution.routine_timeout", "5m")

	// -- Retry --
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.auto_approve", false)

	// -- Evidence --
	v.SetDefault("evidence.dir", "artifacts")
	v.SetDefault("evidence.per_attempt", true)

	// -- Operator --
	v.SetDefault("operator.interactive", true)
	v.SetDefault("operator.pause_before_close", true)
}

// Override adjusts a freshly unmarshaled configuration through its setters.
type Override func(Interface)

// NewConfigFromViper creates a new configuration instance from a viper object.
// Overrides run after unmarshaling and before API key resolution, path
// expansion and validation, so overridden values get the same treatment as
// values from viper.
func NewConfigFromViper(v *viper.Viper, overrides ...Override) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("translator.api_key", "WEBPILOT_TRANSLATOR_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	for _, override := range overrides {
		override(&cfg)
	}

	// Fall back to the provider's conventional variable.
	if cfg.TranslatorCfg.APIKey == "" {
		cfg.TranslatorCfg.APIKey = providerAPIKey(cfg.TranslatorCfg.Provider)
	}

	if cfg.EvidenceCfg.Dir != "" {
		expanded, err := homedir.Expand(cfg.EvidenceCfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("could not expand evidence.dir: %w", err)
		}
		cfg.EvidenceCfg.Dir = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func providerAPIKey(provider string) string {
	switch provider {
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.TranslatorCfg.Validate(); err != nil {
		return fmt.Errorf("translator configuration invalid: %w", err)
	}
	if c.NormalizerCfg.MinLength < 0 {
		return fmt.Errorf("normalizer.min_length must not be negative")
	}
	for i, r := range c.NormalizerCfg.Rewrites {
		if r.From == "" {
			return fmt.Errorf("normalizer.rewrites[%d].from must not be empty", i)
		}
		// A replacement that reintroduces a pattern would make normalization drift on re-runs.
		for j, other := range c.NormalizerCfg.Rewrites {
			if strings.Contains(r.To, other.From) {
				return fmt.Errorf("normalizer.rewrites[%d].to contains the pattern of rewrites[%d]", i, j)
			}
		}
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if c.ExecutionCfg.ActionTimeout <= 0 {
		return fmt.Errorf("execution.action_timeout must be a positive duration")
	}
	if c.ExecutionCfg.RoutineTimeout <= 0 {
		return fmt.Errorf("execution.routine_timeout must be a positive duration")
	}
	if c.RetryCfg.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}
	if c.EvidenceCfg.Dir == "" {
		return fmt.Errorf("evidence.dir is a required configuration field")
	}
	return nil
}

// Validate checks the translator settings.
func (t *TranslatorConfig) Validate() error {
	switch t.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q", t.Provider)
	}
	if t.Model == "" {
		return fmt.Errorf("model is required")
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if t.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch b.Driver {
	case DriverCDP, DriverPlaywright, DriverRod:
	default:
		return fmt.Errorf("unknown driver %q", b.Driver)
	}
	if b.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be a positive duration")
	}
	if b.Viewport.Width < 0 || b.Viewport.Height < 0 {
		return fmt.Errorf("viewport dimensions must not be negative")
	}
	return nil
}
