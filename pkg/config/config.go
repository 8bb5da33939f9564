package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can say "2s" or "5m".
type Duration time.Duration

// Dur returns the wrapped time.Duration.
func (d Duration) Dur() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all configuration options for the engine
type Config struct {
	// Library page to collect from
	Library LibraryConfig `yaml:"library" json:"library"`

	// Scroll-and-settle behaviour
	Scroll ScrollConfig `yaml:"scroll" json:"scroll"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Upload target settings
	Upload UploadConfig `yaml:"upload" json:"upload"`

	// Browser session settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Per-item retry settings
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Optional Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Desktop notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
}

// LibraryConfig holds the source page and its login-wall behaviour
type LibraryConfig struct {
	URL               string   `yaml:"url" json:"url"`
	LoginMarker       string   `yaml:"login_marker" json:"login_marker"`
	LoginPollInterval Duration `yaml:"login_poll_interval" json:"login_poll_interval"`
	LoginMaxWait      Duration `yaml:"login_max_wait" json:"login_max_wait"`
}

// ScrollConfig holds the lazy-load settle behaviour
type ScrollConfig struct {
	Pause           Duration `yaml:"pause" json:"pause"`
	MaxIterations   int      `yaml:"max_iterations" json:"max_iterations"`
	SettleThreshold int      `yaml:"settle_threshold" json:"settle_threshold"`
}

// DownloadConfig holds image download settings
type DownloadConfig struct {
	OutputDir string   `yaml:"output_dir" json:"output_dir"`
	Delay     Duration `yaml:"delay" json:"delay"`
	Burst     int      `yaml:"burst" json:"burst"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
	SkipNames []string `yaml:"skip_names" json:"skip_names"`
}

// UploadConfig holds the builder page settings
type UploadConfig struct {
	TargetURL         string   `yaml:"target_url" json:"target_url"`
	FileInput         string   `yaml:"file_input" json:"file_input"`
	FileInputFallback string   `yaml:"file_input_fallback" json:"file_input_fallback"`
	OrientationSelect string   `yaml:"orientation_select" json:"orientation_select"`
	Orientation       string   `yaml:"orientation" json:"orientation"`
	ConfirmSelector   string   `yaml:"confirm_selector" json:"confirm_selector"`
	ConfirmTimeout    Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
	Delay             Duration `yaml:"delay" json:"delay"`
	KeepBrowserOpen   bool     `yaml:"keep_browser_open" json:"keep_browser_open"`
}

// BrowserConfig holds browser session settings
type BrowserConfig struct {
	Headless     bool     `yaml:"headless" json:"headless"`
	UserAgent    string   `yaml:"user_agent" json:"user_agent"`
	WindowWidth  int      `yaml:"window_width" json:"window_width"`
	WindowHeight int      `yaml:"window_height" json:"window_height"`
	NavTimeout   Duration `yaml:"nav_timeout" json:"nav_timeout"`
}

// RetryConfig holds the bounded per-item retry settings
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64  `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// MetricsConfig holds the optional Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// NotificationConfig holds desktop notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			LoginMarker:       "login",
			LoginPollInterval: Duration(3 * time.Second),
			LoginMaxWait:      Duration(5 * time.Minute),
		},
		Scroll: ScrollConfig{
			Pause:           Duration(2 * time.Second),
			MaxIterations:   50,
			SettleThreshold: 3,
		},
		Download: DownloadConfig{
			OutputDir: "covers",
			Delay:     Duration(500 * time.Millisecond),
			Burst:     1,
			Timeout:   Duration(30 * time.Second),
			SkipNames: []string{"defaultappheader.png"},
		},
		Upload: UploadConfig{
			TargetURL:         "https://tiermaker.com/single-use-tier-list/",
			FileInput:         "#extra-images-input",
			FileInputFallback: "input[type='file'][accept*='image']",
			OrientationSelect: "#orientation-picker",
			Orientation:       "portrait",
			ConfirmSelector:   ".character",
			ConfirmTimeout:    Duration(15 * time.Second),
			Delay:             Duration(1 * time.Second),
			KeepBrowserOpen:   true,
		},
		Browser: BrowserConfig{
			Headless:     false,
			WindowWidth:  1280,
			WindowHeight: 1080,
			NavTimeout:   Duration(45 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: Duration(1 * time.Second),
			MaxDelay:     Duration(30 * time.Second),
			Multiplier:   2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TIERUP_LIBRARY_URL"); v != "" {
		c.Library.URL = v
	}
	if v := os.Getenv("TIERUP_LOGIN_MARKER"); v != "" {
		c.Library.LoginMarker = v
	}
	if v := os.Getenv("TIERUP_OUTPUT_DIR"); v != "" {
		c.Download.OutputDir = v
	}
	if v := os.Getenv("TIERUP_DOWNLOAD_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Download.Delay = Duration(d)
		}
	}
	if v := os.Getenv("TIERUP_TARGET_URL"); v != "" {
		c.Upload.TargetURL = v
	}
	if v := os.Getenv("TIERUP_MAX_SCROLLS"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Scroll.MaxIterations = val
		}
	}
	if v := os.Getenv("TIERUP_HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("TIERUP_USER_AGENT"); v != "" {
		c.Browser.UserAgent = v
	}
	if v := os.Getenv("TIERUP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TIERUP_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
	if v := os.Getenv("TIERUP_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"tierup.yaml",
		"tierup.yml",
		".tierup.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "tierup", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "tierup", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".tierup.yaml"),
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

	if c.Library.URL == "" {
		errs = append(errs, errors.New("library URL is required"))
	} else if u, err := url.Parse(c.Library.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, errors.New("library URL must be an absolute http(s) URL"))
	}
	if c.Library.LoginPollInterval.Dur() <= 0 {
		errs = append(errs, errors.New("login poll interval must be positive"))
	}
	if c.Library.LoginMaxWait.Dur() < c.Library.LoginPollInterval.Dur() {
		errs = append(errs, errors.New("login max wait must be at least the poll interval"))
	}

	if c.Scroll.Pause.Dur() <= 0 {
		errs = append(errs, errors.New("scroll pause must be positive"))
	}
	if c.Scroll.MaxIterations < 1 {
		errs = append(errs, errors.New("scroll max iterations must be at least 1"))
	}
	if c.Scroll.SettleThreshold < 1 {
		errs = append(errs, errors.New("scroll settle threshold must be at least 1"))
	}

	if c.Download.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Download.Delay.Dur() < 0 {
		errs = append(errs, errors.New("download delay cannot be negative"))
	}
	if c.Download.Burst < 1 {
		errs = append(errs, errors.New("download burst must be at least 1"))
	}
	if c.Download.Timeout.Dur() <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Upload.TargetURL == "" {
		errs = append(errs, errors.New("upload target URL is required"))
	} else if u, err := url.Parse(c.Upload.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, errors.New("upload target URL must be an absolute http(s) URL"))
	}
	if c.Upload.FileInput == "" {
		errs = append(errs, errors.New("upload file input selector is required"))
	}
	if c.Upload.ConfirmSelector == "" {
		errs = append(errs, errors.New("upload confirm selector is required"))
	}
	if c.Upload.ConfirmTimeout.Dur() <= 0 {
		errs = append(errs, errors.New("upload confirm timeout must be positive"))
	}
	switch strings.ToLower(c.Upload.Orientation) {
	case "portrait", "landscape":
	default:
		errs = append(errs, errors.New("orientation must be portrait or landscape"))
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser window size must be positive"))
	}
	if c.Browser.NavTimeout.Dur() <= 0 {
		errs = append(errs, errors.New("browser navigation timeout must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "console", "json":
	default:
		errs = append(errs, errors.New("log format must be auto, console, or json"))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics address is required when metrics are enabled"))
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

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["library-url"].(string); ok && v != "" {
		c.Library.URL = v
	}
	if v, ok := flags["output-dir"].(string); ok && v != "" {
		c.Download.OutputDir = v
	}
	if v, ok := flags["target-url"].(string); ok && v != "" {
		c.Upload.TargetURL = v
	}
	if v, ok := flags["delay"].(time.Duration); ok && v > 0 {
		c.Download.Delay = Duration(v)
	}
	if v, ok := flags["max-scrolls"].(int); ok && v > 0 {
		c.Scroll.MaxIterations = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
	if v, ok := flags["keep-open"].(bool); ok {
		c.Upload.KeepBrowserOpen = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tierup.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
