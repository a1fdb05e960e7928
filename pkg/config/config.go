package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"captioner/pkg/models"
)

// KnownBackends lists the backend names accepted by backend.name
var KnownBackends = []string{"mock", "openai", "xai", "anthropic", "gemini", "local"}

// ProviderEnvVars maps a backend name to the environment variable holding its API key
var ProviderEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"xai":       "XAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// DefaultPrompt is sent to every backend unless overridden
const DefaultPrompt = "Describe this photo in one or two sentences. Focus on the main subject, setting, and activity."

// Config holds all configuration options for captioner
type Config struct {
	Backend BackendConfig `yaml:"backend" json:"backend"`

	Run RunConfig `yaml:"run" json:"run"`

	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Client side throttling of the caption service
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry of transient caption service failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	Image ImageConfig `yaml:"image" json:"image"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`

	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	Supervisor SupervisorConfig `yaml:"supervisor" json:"supervisor"`

	Keys KeysConfig `yaml:"keys" json:"keys"`
}

// BackendConfig selects and configures the caption backend
type BackendConfig struct {
	Name      string        `yaml:"name" json:"name"`
	Model     string        `yaml:"model" json:"model"`
	Prompt    string        `yaml:"prompt" json:"prompt"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	MaxTokens int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// ErrorRate makes the mock backend fail a fraction of photos
	ErrorRate float64 `yaml:"error_rate" json:"error_rate"`
	// APIKey is never written to disk
	APIKey string `yaml:"-" json:"-"`
}

// RunConfig holds dispatcher settings for one run
type RunConfig struct {
	MaxWorkers   int      `yaml:"max_workers" json:"max_workers"`
	Window       int      `yaml:"window" json:"window"`
	RestartEvery int      `yaml:"restart_every" json:"restart_every"`
	Limit        int      `yaml:"limit" json:"limit"`
	RetryStatus  []string `yaml:"retry_status" json:"retry_status"`
	Force        bool     `yaml:"force" json:"force"`
	DryRun       bool     `yaml:"dry_run" json:"dry_run"`
}

// PathsConfig holds the photo library root and the journal location
type PathsConfig struct {
	PhotosDir string `yaml:"photos_dir" json:"photos_dir"`
	Journal   string `yaml:"journal" json:"journal"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// ImageConfig controls how photos are normalized before upload
type ImageConfig struct {
	// MaxDimension caps the longest side in pixels, 0 keeps the original size
	MaxDimension int `yaml:"max_dimension" json:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality" json:"jpeg_quality"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnCheckpoint     bool   `yaml:"on_checkpoint" json:"on_checkpoint"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// SupervisorConfig controls the batch supervisor
type SupervisorConfig struct {
	Pause      time.Duration `yaml:"pause" json:"pause"`
	Schedule   string        `yaml:"schedule" json:"schedule"`
	MaxBatches int           `yaml:"max_batches" json:"max_batches"`
}

// KeysConfig selects where API keys are stored
type KeysConfig struct {
	// Store is one of auto, keyring, file, env
	Store string `yaml:"store" json:"store"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Name:      "openai",
			Prompt:    DefaultPrompt,
			MaxTokens: 256,
			Timeout:   120 * time.Second,
		},
		Run: RunConfig{
			MaxWorkers: 1,
			Window:     500,
		},
		Paths: PathsConfig{
			Journal: "captions.jsonl",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			BaseDelay:    1 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Image: ImageConfig{
			MaxDimension: 1568,
			JPEGQuality:  85,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnCheckpoint:     true,
			OnComplete:       true,
			NotificationType: "terminal",
		},
		Supervisor: SupervisorConfig{
			Pause: 5 * time.Second,
		},
		Keys: KeysConfig{
			Store: "auto",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setString("CAPTIONER_BACKEND", &c.Backend.Name)
	setString("CAPTIONER_MODEL", &c.Backend.Model)
	setString("CAPTIONER_PROMPT", &c.Backend.Prompt)
	setString("CAPTIONER_BASE_URL", &c.Backend.BaseURL)
	setString("CAPTIONER_API_KEY", &c.Backend.APIKey)

	// PHOTOS_DIR is the name older deployments used
	setString("PHOTOS_DIR", &c.Paths.PhotosDir)
	setString("CAPTIONER_PHOTOS_DIR", &c.Paths.PhotosDir)
	setString("CAPTIONER_JOURNAL", &c.Paths.Journal)

	setInt("CAPTIONER_MAX_WORKERS", &c.Run.MaxWorkers)
	setInt("CAPTIONER_RESTART_EVERY", &c.Run.RestartEvery)
	setInt("CAPTIONER_WINDOW", &c.Run.Window)
	setInt("CAPTIONER_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setInt("CAPTIONER_MAX_DIMENSION", &c.Image.MaxDimension)

	if v := os.Getenv("CAPTIONER_RETRY_STATUS"); v != "" {
		c.Run.RetryStatus = splitList(v)
	}

	setBool("CAPTIONER_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	setString("CAPTIONER_LOG_LEVEL", &c.Logging.Level)
	setString("CAPTIONER_LOG_FILE", &c.Logging.File)
	setString("CAPTIONER_KEY_STORE", &c.Keys.Store)

	return errors.Join(errs...)
}

// ResolveProviderKey fills Backend.APIKey from the provider's environment
// variable when no explicit key was configured
func (c *Config) ResolveProviderKey() {
	if c.Backend.APIKey != "" {
		return
	}
	if name, ok := ProviderEnvVars[c.Backend.Name]; ok {
		c.Backend.APIKey = os.Getenv(name)
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
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
	for _, loc := range SearchPaths() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// SearchPaths lists the config file locations in order of precedence
func SearchPaths() []string {
	home := os.Getenv("HOME")
	return []string{
		".captioner.yaml",
		".captioner.yml",
		filepath.Join(home, ".config", "captioner", "config.yaml"),
		filepath.Join(home, ".config", "captioner", "config.yml"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if !isKnownBackend(c.Backend.Name) {
		errs = append(errs, fmt.Errorf("unknown backend %q (want one of %s)", c.Backend.Name, strings.Join(KnownBackends, ", ")))
	}
	if c.Backend.ErrorRate < 0 || c.Backend.ErrorRate > 1 {
		errs = append(errs, errors.New("backend error rate must be between 0 and 1"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend timeout must be positive"))
	}

	if c.Run.MaxWorkers < 1 {
		errs = append(errs, errors.New("max workers must be at least 1"))
	}
	if c.Run.Window < 1 {
		errs = append(errs, errors.New("window must be at least 1"))
	}
	if c.Run.RestartEvery < 0 {
		errs = append(errs, errors.New("restart every cannot be negative"))
	}
	if c.Run.Limit < 0 {
		errs = append(errs, errors.New("limit cannot be negative"))
	}
	for _, s := range c.Run.RetryStatus {
		if _, err := models.ParseStatus(s); err != nil {
			errs = append(errs, fmt.Errorf("retry status: %w", err))
		}
	}

	if c.Paths.Journal == "" {
		errs = append(errs, errors.New("journal path is required"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Image.MaxDimension < 0 {
		errs = append(errs, errors.New("max dimension cannot be negative"))
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		errs = append(errs, errors.New("jpeg quality must be between 1 and 100"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	validStores := map[string]bool{
		"auto": true, "keyring": true, "file": true, "env": true,
	}
	if !validStores[strings.ToLower(c.Keys.Store)] {
		errs = append(errs, errors.New("invalid key store"))
	}

	if c.Supervisor.Pause < 0 {
		errs = append(errs, errors.New("supervisor pause cannot be negative"))
	}

	return errors.Join(errs...)
}

// RetrySet parses Run.RetryStatus into a status set
func (c *Config) RetrySet() (models.StatusSet, error) {
	return models.ParseStatusList(strings.Join(c.Run.RetryStatus, ","))
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges explicitly set command line flags into the
// configuration. Keys are flag names as registered on the cobra command.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["backend"].(string); ok && v != "" {
		c.Backend.Name = v
	}
	if v, ok := flags["model"].(string); ok && v != "" {
		c.Backend.Model = v
	}
	if v, ok := flags["prompt"].(string); ok && v != "" {
		c.Backend.Prompt = v
	}
	if v, ok := flags["base-url"].(string); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := flags["photos-dir"].(string); ok && v != "" {
		c.Paths.PhotosDir = v
	}
	if v, ok := flags["journal"].(string); ok && v != "" {
		c.Paths.Journal = v
	}
	if v, ok := flags["max-workers"].(int); ok {
		c.Run.MaxWorkers = v
	}
	if v, ok := flags["window"].(int); ok {
		c.Run.Window = v
	}
	if v, ok := flags["restart-every"].(int); ok {
		c.Run.RestartEvery = v
	}
	if v, ok := flags["limit"].(int); ok {
		c.Run.Limit = v
	}
	if v, ok := flags["retry-status"].(string); ok {
		c.Run.RetryStatus = splitList(v)
	}
	if v, ok := flags["force"].(bool); ok {
		c.Run.Force = v
	}
	if v, ok := flags["dry-run"].(bool); ok {
		c.Run.DryRun = v
	}
	if v, ok := flags["max-dimension"].(int); ok {
		c.Image.MaxDimension = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
	if v, ok := flags["notify"].(bool); ok {
		c.Notifications.Enabled = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > env files > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load("config.env")
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".captioner.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)
	config.ResolveProviderKey()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func isKnownBackend(name string) bool {
	for _, b := range KnownBackends {
		if b == name {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
