package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultProfile != "default" {
		t.Errorf("Expected default profile 'default', got '%s'", cfg.DefaultProfile)
	}

	if cfg.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("Expected default output format 'json', got '%s'", cfg.DefaultOutputFormat)
	}

	if cfg.Backend != utils.BackendGraph {
		t.Errorf("Expected backend 'graph', got '%s'", cfg.Backend)
	}

	if cfg.CacheTTL != 0 {
		t.Errorf("Expected session-long cache (TTL 0), got %d", cfg.CacheTTL)
	}

	if cfg.CompanionMatch != CompanionMatchExact {
		t.Errorf("Expected exact companion matching, got '%s'", cfg.CompanionMatch)
	}

	if len(cfg.ColorRules) != 3 {
		t.Fatalf("Expected 3 default color rules, got %d", len(cfg.ColorRules))
	}

	wantColors := map[string]string{"AR": "#ffa500", "HV": "#0000ff", "TS": "#800080"}
	for _, rule := range cfg.ColorRules {
		if wantColors[rule.Prefix] != rule.Color {
			t.Errorf("Rule %s: expected color %s, got %s", rule.Prefix, wantColors[rule.Prefix], rule.Color)
		}
		if rule.Opacity != 0.7 || !rule.DoubleSided {
			t.Errorf("Rule %s: expected opacity 0.7 double-sided, got %v/%v", rule.Prefix, rule.Opacity, rule.DoubleSided)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid output format",
			mutate:   func(c *Config) { c.DefaultOutputFormat = types.OutputFormat("invalid") },
			errorMsg: "invalid output format",
		},
		{
			name:     "invalid backend",
			mutate:   func(c *Config) { c.Backend = "ftp" },
			errorMsg: "invalid backend",
		},
		{
			name:     "negative cache TTL",
			mutate:   func(c *Config) { c.CacheTTL = -1 },
			errorMsg: "cache TTL must be non-negative",
		},
		{
			name:     "max retries too high",
			mutate:   func(c *Config) { c.MaxRetries = 11 },
			errorMsg: "max retries must be between 0 and 10",
		},
		{
			name:     "retry base delay too low",
			mutate:   func(c *Config) { c.RetryBaseDelay = 50 },
			errorMsg: "retry base delay must be between",
		},
		{
			name:     "request timeout zero",
			mutate:   func(c *Config) { c.RequestTimeout = 0 },
			errorMsg: "request timeout must be between",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.LogLevel = "loud" },
			errorMsg: "invalid log level",
		},
		{
			name:     "no supported extensions",
			mutate:   func(c *Config) { c.SupportedExtensions = nil },
			errorMsg: "at least one supported extension",
		},
		{
			name:     "invalid companion match",
			mutate:   func(c *Config) { c.CompanionMatch = "fuzzy" },
			errorMsg: "invalid companion match mode",
		},
		{
			name:     "bad rule color",
			mutate:   func(c *Config) { c.ColorRules[0].Color = "orange" },
			errorMsg: "invalid color",
		},
		{
			name:     "rule opacity out of range",
			mutate:   func(c *Config) { c.ColorRules[1].Opacity = 1.5 },
			errorMsg: "opacity must be between 0 and 1",
		},
		{
			name:     "rule without prefix",
			mutate:   func(c *Config) { c.ColorRules = append(c.ColorRules, ColorRule{Color: "#ffffff"}) },
			errorMsg: "prefix is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.errorMsg, err)
			}
		})
	}
}

func TestConfigDurationGetters(t *testing.T) {
	cfg := &Config{
		CacheTTL:       300,
		RetryBaseDelay: 1500,
		RequestTimeout: 60,
	}

	if d := cfg.GetCacheTTL(); d != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %v", d)
	}
	if d := cfg.GetRetryBaseDelay(); d != 1500*time.Millisecond {
		t.Errorf("Expected retry base delay 1.5s, got %v", d)
	}
	if d := cfg.GetRequestTimeout(); d != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", d)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := DefaultConfig()
	cfg.DefaultProfile = "site-a"
	cfg.Backend = utils.BackendS3
	cfg.S3.Region = "eu-central-1"
	cfg.Graph.ClientSecret = "must-not-persist"
	cfg.CompanionMatch = CompanionMatchFold
	cfg.ColorRules = []ColorRule{{Prefix: "ST", Color: "#808080", Opacity: 1}}

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	if strings.Contains(string(raw), "must-not-persist") {
		t.Error("Client secret was written to disk")
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if loaded.DefaultProfile != "site-a" {
		t.Errorf("Expected profile 'site-a', got '%s'", loaded.DefaultProfile)
	}
	if loaded.Backend != utils.BackendS3 || loaded.S3.Region != "eu-central-1" {
		t.Errorf("Backend settings not round-tripped: %+v", loaded.S3)
	}
	if loaded.CompanionMatch != CompanionMatchFold {
		t.Errorf("Expected fold matching, got %s", loaded.CompanionMatch)
	}
	if len(loaded.ColorRules) != 1 || loaded.ColorRules[0].Prefix != "ST" {
		t.Errorf("Color rules should be replaced, got %+v", loaded.ColorRules)
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Backend != utils.BackendGraph {
		t.Errorf("Expected default backend, got %s", cfg.Backend)
	}
}

func TestLoadFrom_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("Expected error for malformed config")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BIMVIEW_DEFAULT_PROFILE", "env-profile")
	t.Setenv("BIMVIEW_OUTPUT_FORMAT", "table")
	t.Setenv("BIMVIEW_BACKEND", "gdrive")
	t.Setenv("BIMVIEW_GRAPH_TENANT_ID", "contoso.onmicrosoft.com")
	t.Setenv("BIMVIEW_CACHE_TTL", "900")
	t.Setenv("BIMVIEW_MAX_RETRIES", "7")
	t.Setenv("BIMVIEW_LOG_LEVEL", "debug")
	t.Setenv("BIMVIEW_SUPPORTED_EXTENSIONS", "IFC, gltf ,.glb,")
	t.Setenv("BIMVIEW_S3_PATH_STYLE", "yes")

	cfg := DefaultConfig()
	cfg.loadFromEnv()
	cfg.normalize()

	if cfg.DefaultProfile != "env-profile" {
		t.Errorf("Expected profile 'env-profile', got '%s'", cfg.DefaultProfile)
	}
	if cfg.DefaultOutputFormat != types.OutputFormatTable {
		t.Errorf("Expected output format 'table', got '%s'", cfg.DefaultOutputFormat)
	}
	if cfg.Backend != utils.BackendGDrive {
		t.Errorf("Expected backend 'gdrive', got '%s'", cfg.Backend)
	}
	if cfg.Graph.TenantID != "contoso.onmicrosoft.com" {
		t.Errorf("Expected tenant override, got '%s'", cfg.Graph.TenantID)
	}
	if cfg.CacheTTL != 900 {
		t.Errorf("Expected cache TTL 900, got %d", cfg.CacheTTL)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("Expected max retries 7, got %d", cfg.MaxRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.LogLevel)
	}
	if !cfg.S3.UsePathStyle {
		t.Error("Expected path-style S3 addressing")
	}

	want := []string{".ifc", ".gltf", ".glb"}
	if strings.Join(cfg.SupportedExtensions, ",") != strings.Join(want, ",") {
		t.Errorf("Expected extensions %v, got %v", want, cfg.SupportedExtensions)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"#ffa500", 0xffa500, false},
		{"0000ff", 0x0000ff, false},
		{" #800080 ", 0x800080, false},
		{"#fff", 0, true},
		{"#gggggg", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHexColor(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		if got := parseBool(tt.input); got != tt.expected {
			t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestConfigJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"backend"`, `"colorRules"`, `"companionMatch"`, `"supportedExtensions"`, `"tenantId"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected JSON key %s in %s", key, data)
		}
	}
}
