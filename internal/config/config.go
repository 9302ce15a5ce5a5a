package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// ProjectsFileName holds named project shortcuts
	ProjectsFileName = "projects.yaml"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "BIMVIEW_"
)

// Companion matching modes
const (
	CompanionMatchExact = "exact"
	CompanionMatchFold  = "fold"
)

// Config holds application configuration
type Config struct {
	// DefaultProfile is the default authentication profile to use
	DefaultProfile string `json:"defaultProfile"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// Backend selects the remote file store (graph, gdrive, s3)
	Backend string `json:"backend"`

	Graph  GraphConfig  `json:"graph"`
	GDrive GDriveConfig `json:"gdrive"`
	S3     S3Config     `json:"s3"`

	// CacheTTL is how long folder listings stay fresh, in seconds. 0 = whole session.
	CacheTTL int `json:"cacheTTL"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the default request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// ColorOutput enables color output for table format
	ColorOutput bool `json:"colorOutput"`

	// SupportedExtensions lists the selectable model extensions, lower case with dot
	SupportedExtensions []string `json:"supportedExtensions"`

	// CompanionMatch controls .gltf -> .bin stem matching (exact, fold)
	CompanionMatch string `json:"companionMatch"`

	// ColorRules override model materials by file name prefix
	ColorRules []ColorRule `json:"colorRules"`

	Viewport ViewportConfig `json:"viewport"`

	// ServeAddr is the listen address for 'bimview serve'
	ServeAddr string `json:"serveAddr"`
}

// GraphConfig configures the Microsoft Graph backend and its Entra ID app
type GraphConfig struct {
	TenantID string `json:"tenantId"`
	ClientID string `json:"clientId"`
	// ClientSecret enables app-only access; prefer BIMVIEW_GRAPH_CLIENT_SECRET
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectPort int    `json:"redirectPort"`
}

// GDriveConfig configures the Google Drive backend
type GDriveConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectPort int    `json:"redirectPort"`
}

// S3Config configures the S3 backend. The drive ID is the bucket name.
type S3Config struct {
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle"`

	// Static keys are read from the environment only; without them the
	// default AWS credential chain applies.
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
}

// ColorRule paints every material of a model whose file name starts with Prefix
type ColorRule struct {
	Prefix      string  `json:"prefix"`
	Color       string  `json:"color"`
	Opacity     float64 `json:"opacity"`
	DoubleSided bool    `json:"doubleSided"`
}

// ViewportConfig is the render surface the scene is framed for
type ViewportConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultColorRules returns the discipline palette: architecture orange,
// HVAC blue, low-voltage purple
func DefaultColorRules() []ColorRule {
	return []ColorRule{
		{Prefix: "AR", Color: "#ffa500", Opacity: 0.7, DoubleSided: true},
		{Prefix: "HV", Color: "#0000ff", Opacity: 0.7, DoubleSided: true},
		{Prefix: "TS", Color: "#800080", Opacity: 0.7, DoubleSided: true},
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile:      "default",
		DefaultOutputFormat: types.OutputFormatJSON,
		Backend:             utils.BackendGraph,
		Graph: GraphConfig{
			TenantID:     "common",
			RedirectPort: 8085,
		},
		GDrive: GDriveConfig{
			RedirectPort: 8086,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		CacheTTL:            utils.DefaultCacheTTLSeconds,
		MaxRetries:          utils.DefaultMaxRetries,
		RetryBaseDelay:      utils.DefaultRetryDelayMs,
		RequestTimeout:      120,
		LogLevel:            "normal",
		ColorOutput:         true,
		SupportedExtensions: append([]string(nil), utils.DefaultSupportedExtensions...),
		CompanionMatch:      CompanionMatchExact,
		ColorRules:          DefaultColorRules(),
		Viewport: ViewportConfig{
			Width:  utils.DefaultViewportWidth,
			Height: utils.DefaultViewportHeight,
		},
		ServeAddr: "127.0.0.1:8090",
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROFILE"); v != "" {
		c.DefaultProfile = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvPrefix + "GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv(EnvPrefix + "GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv(EnvPrefix + "GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_CLIENT_ID"); v != "" {
		c.GDrive.ClientID = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_CLIENT_SECRET"); v != "" {
		c.GDrive.ClientSecret = v
	}
	if v := os.Getenv(EnvPrefix + "S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv(EnvPrefix + "S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "S3_PATH_STYLE"); v != "" {
		c.S3.UsePathStyle = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "S3_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := os.Getenv(EnvPrefix + "S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}
	if v := os.Getenv(EnvPrefix + "CACHE_TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			c.CacheTTL = ttl
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = timeout
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "SUPPORTED_EXTENSIONS"); v != "" {
		c.SupportedExtensions = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvPrefix + "COMPANION_MATCH"); v != "" {
		c.CompanionMatch = v
	}
	if v := os.Getenv(EnvPrefix + "SERVE_ADDR"); v != "" {
		c.ServeAddr = v
	}
}

// normalize lower-cases extensions and ensures each starts with a dot
func (c *Config) normalize() {
	exts := make([]string, 0, len(c.SupportedExtensions))
	for _, e := range c.SupportedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	c.SupportedExtensions = exts
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path. Client secrets are never persisted.
func (c *Config) SaveTo(configPath string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	persisted := *c
	persisted.Graph.ClientSecret = ""
	persisted.GDrive.ClientSecret = ""

	data, err := json.MarshalIndent(&persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	switch c.Backend {
	case utils.BackendGraph, utils.BackendGDrive, utils.BackendS3:
	default:
		return fmt.Errorf("invalid backend: %s (must be 'graph', 'gdrive', or 's3')", c.Backend)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must be non-negative, got: %d", c.CacheTTL)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("at least one supported extension is required")
	}

	if c.CompanionMatch != CompanionMatchExact && c.CompanionMatch != CompanionMatchFold {
		return fmt.Errorf("invalid companion match mode: %s (must be 'exact' or 'fold')", c.CompanionMatch)
	}

	for i, rule := range c.ColorRules {
		if rule.Prefix == "" {
			return fmt.Errorf("color rule %d: prefix is required", i)
		}
		if _, err := ParseHexColor(rule.Color); err != nil {
			return fmt.Errorf("color rule %q: %w", rule.Prefix, err)
		}
		if rule.Opacity < 0 || rule.Opacity > 1 {
			return fmt.Errorf("color rule %q: opacity must be between 0 and 1, got: %v", rule.Prefix, rule.Opacity)
		}
	}

	if c.Viewport.Width < 0 || c.Viewport.Height < 0 {
		return fmt.Errorf("viewport dimensions must be non-negative")
	}

	return nil
}

// ParseHexColor parses "#rrggbb" or "rrggbb" into a packed 0xRRGGBB value
func ParseHexColor(s string) (uint32, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return 0, fmt.Errorf("invalid color %q (want #rrggbb)", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return uint32(v), nil
}

// GetCacheTTL returns the cache TTL as a duration
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "bimview"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
