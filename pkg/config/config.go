package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the config reads
const EnvPrefix = "TICKERWATCH_"

// Failure policies for a scheduled run
const (
	FailurePolicySkip  = "skip"
	FailurePolicyAbort = "abort"
)

// Report formats
const (
	ReportFormatLog   = "log"
	ReportFormatTable = "table"
)

// Config holds all configuration options for tickerwatch
type Config struct {
	// Profile handles to harvest, in visiting order
	Sources []string `yaml:"sources" json:"sources"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Renderer RendererConfig `yaml:"renderer" json:"renderer"`
	Scroll   ScrollConfig   `yaml:"scroll" json:"scroll"`
	Harvest  HarvestConfig  `yaml:"harvest" json:"harvest"`
	Extract  ExtractConfig  `yaml:"extract" json:"extract"`
	Report   ReportConfig   `yaml:"report" json:"report"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ScheduleConfig controls how often and how widely sources are harvested
type ScheduleConfig struct {
	// Interval is measured from the end of one run to the start of the next
	Interval      time.Duration `yaml:"interval" json:"interval"`
	Concurrency   int           `yaml:"concurrency" json:"concurrency"`
	FailurePolicy string        `yaml:"failure_policy" json:"failure_policy"`
}

// RendererConfig holds headless browser settings
type RendererConfig struct {
	Browser           string        `yaml:"browser" json:"browser"`
	Headless          bool          `yaml:"headless" json:"headless"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	InstallBrowsers   bool          `yaml:"install_browsers" json:"install_browsers"`
}

// ScrollConfig holds the infinite-scroll detector settings
type ScrollConfig struct {
	StepPixels       int           `yaml:"step_px" json:"step_px"`
	TickInterval     time.Duration `yaml:"tick_interval" json:"tick_interval"`
	SettleDelay      time.Duration `yaml:"settle_delay" json:"settle_delay"`
	MaxIterations    int           `yaml:"max_iterations" json:"max_iterations"`
	MaxDuration      time.Duration `yaml:"max_duration" json:"max_duration"`
	FailOnForcedStop bool          `yaml:"fail_on_forced_stop" json:"fail_on_forced_stop"`
}

// HarvestConfig holds per-source harvesting settings
type HarvestConfig struct {
	ArticleSelector    string        `yaml:"article_selector" json:"article_selector"`
	ReadinessTimeout   time.Duration `yaml:"readiness_timeout" json:"readiness_timeout"`
	NavigationAttempts int           `yaml:"navigation_attempts" json:"navigation_attempts"`
	RetryDelay         time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// ExtractConfig holds the symbol pattern
type ExtractConfig struct {
	Pattern string `yaml:"pattern" json:"pattern"`
}

// ReportConfig selects how run results are emitted
type ReportConfig struct {
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sources: []string{},
		Schedule: ScheduleConfig{
			Interval:      time.Hour,
			Concurrency:   1,
			FailurePolicy: FailurePolicySkip,
		},
		Renderer: RendererConfig{
			Browser:           "chromium",
			Headless:          true,
			BaseURL:           "https://x.com",
			NavigationTimeout: 0, // 0 means no limit
		},
		Scroll: ScrollConfig{
			StepPixels:    100,
			TickInterval:  100 * time.Millisecond,
			SettleDelay:   2 * time.Second,
			MaxIterations: 200,
			MaxDuration:   10 * time.Minute,
		},
		Harvest: HarvestConfig{
			ArticleSelector:    "article",
			ReadinessTimeout:   30 * time.Second,
			NavigationAttempts: 1,
			RetryDelay:         5 * time.Second,
		},
		Extract: ExtractConfig{
			Pattern: `\$\w{3,4}`,
		},
		Report: ReportConfig{
			Format: ReportFormatLog,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if sources := os.Getenv(EnvPrefix + "SOURCES"); sources != "" {
		c.Sources = ParseSources(sources)
	}

	if interval := os.Getenv(EnvPrefix + "INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sINTERVAL: %w", EnvPrefix, err))
		} else {
			c.Schedule.Interval = d
		}
	}

	if concurrency := os.Getenv(EnvPrefix + "CONCURRENCY"); concurrency != "" {
		val, err := strconv.Atoi(concurrency)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err))
		} else if val > 0 {
			c.Schedule.Concurrency = val
		}
	}

	if policy := os.Getenv(EnvPrefix + "FAILURE_POLICY"); policy != "" {
		c.Schedule.FailurePolicy = strings.ToLower(policy)
	}

	if headless := os.Getenv(EnvPrefix + "HEADLESS"); headless != "" {
		c.Renderer.Headless = strings.ToLower(headless) == "true"
	}

	if baseURL := os.Getenv(EnvPrefix + "BASE_URL"); baseURL != "" {
		c.Renderer.BaseURL = baseURL
	}

	if userAgent := os.Getenv(EnvPrefix + "USER_AGENT"); userAgent != "" {
		c.Renderer.UserAgent = userAgent
	}

	if logLevel := os.Getenv(EnvPrefix + "LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if addr := os.Getenv(EnvPrefix + "METRICS_ADDRESS"); addr != "" {
		c.Metrics.Address = addr
		c.Metrics.Enabled = true
	}

	return errors.Join(errs...)
}

// ParseSources splits a comma or whitespace separated list of handles,
// dropping empty entries and a leading "@".
func ParseSources(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	sources := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimSpace(f), "@")
		if f != "" {
			sources = append(sources, f)
		}
	}
	return sources
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for config file in standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"tickerwatch.yaml",
		".tickerwatch.yaml",
		".tickerwatch.yml",
		filepath.Join(home, ".config", "tickerwatch", "config.yaml"),
		filepath.Join(home, ".config", "tickerwatch", "config.yml"),
		filepath.Join(home, ".tickerwatch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	for i, s := range c.Sources {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Errorf("source %d is empty", i))
		}
	}

	// Schedule
	if c.Schedule.Interval <= 0 {
		errs = append(errs, errors.New("schedule interval must be positive"))
	}
	if c.Schedule.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Schedule.Concurrency > 8 {
		errs = append(errs, errors.New("concurrency should not exceed 8 renderer sessions"))
	}
	switch c.Schedule.FailurePolicy {
	case FailurePolicySkip, FailurePolicyAbort:
	default:
		errs = append(errs, fmt.Errorf("invalid failure policy %q", c.Schedule.FailurePolicy))
	}

	// Renderer
	switch strings.ToLower(c.Renderer.Browser) {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, fmt.Errorf("unsupported browser %q", c.Renderer.Browser))
	}
	if c.Renderer.BaseURL == "" {
		errs = append(errs, errors.New("renderer base URL is required"))
	}
	if c.Renderer.NavigationTimeout < 0 {
		errs = append(errs, errors.New("navigation timeout cannot be negative"))
	}

	// Scroll
	if c.Scroll.StepPixels <= 0 {
		errs = append(errs, errors.New("scroll step must be positive"))
	}
	if c.Scroll.TickInterval < 0 || c.Scroll.SettleDelay < 0 {
		errs = append(errs, errors.New("scroll delays cannot be negative"))
	}
	if c.Scroll.MaxIterations <= 0 && c.Scroll.MaxDuration <= 0 {
		errs = append(errs, errors.New("scroll needs max_iterations or max_duration to bound unstable feeds"))
	}

	// Harvest
	if c.Harvest.ArticleSelector == "" {
		errs = append(errs, errors.New("article selector is required"))
	}
	if c.Harvest.ReadinessTimeout <= 0 {
		errs = append(errs, errors.New("readiness timeout must be positive"))
	}
	if c.Harvest.NavigationAttempts <= 0 {
		errs = append(errs, errors.New("navigation attempts must be positive"))
	}

	// Extract
	if _, err := regexp.Compile(c.Extract.Pattern); err != nil || c.Extract.Pattern == "" {
		errs = append(errs, fmt.Errorf("invalid symbol pattern %q", c.Extract.Pattern))
	}

	// Report
	switch strings.ToLower(c.Report.Format) {
	case ReportFormatLog, ReportFormatTable:
	default:
		errs = append(errs, fmt.Errorf("invalid report format %q", c.Report.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics address is required when metrics are enabled"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys that are present override the loaded values.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if sources, ok := flags["sources"].([]string); ok && len(sources) > 0 {
		c.Sources = sources
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval > 0 {
		c.Schedule.Interval = interval
	}
	if concurrency, ok := flags["concurrency"].(int); ok && concurrency > 0 {
		c.Schedule.Concurrency = concurrency
	}
	if policy, ok := flags["failure-policy"].(string); ok && policy != "" {
		c.Schedule.FailurePolicy = strings.ToLower(policy)
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Renderer.Headless = headless
	}
	if browser, ok := flags["browser"].(string); ok && browser != "" {
		c.Renderer.Browser = browser
	}
	if format, ok := flags["format"].(string); ok && format != "" {
		c.Report.Format = strings.ToLower(format)
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.Address = addr
		c.Metrics.Enabled = true
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if noColor, ok := flags["no-color"].(bool); ok && noColor {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tickerwatch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
