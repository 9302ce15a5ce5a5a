package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing bimview configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration settings",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Keys are case-insensitive; nested keys use a
dot, e.g. graph.clientId or viewport.width. Use 'config show' to see them.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg, err := loadConfig()
	if err != nil {
		return out.Fail("config.show", err)
	}
	shown := *cfg
	if shown.Graph.ClientSecret != "" {
		shown.Graph.ClientSecret = "[REDACTED]"
	}
	if shown.GDrive.ClientSecret != "" {
		shown.GDrive.ClientSecret = "[REDACTED]"
	}
	return out.WriteSuccess("config.show", &shown)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	key, value := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return out.Fail("config.set", err)
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return out.Fail("config.set", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("key", key).
			Build()))
	}

	if err := saveConfig(cfg); err != nil {
		return out.Fail("config.set", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build()))
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg := config.DefaultConfig()
	if err := saveConfig(cfg); err != nil {
		return out.Fail("config.reset", utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build()))
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}

// setConfigValue parses value for key into cfg. Range checks beyond
// parsing are left to Config.Validate on save.
func setConfigValue(cfg *config.Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	}

	var err error
	switch strings.ToLower(key) {
	case "defaultprofile":
		cfg.DefaultProfile = value
	case "defaultoutputformat":
		if value != string(types.OutputFormatJSON) && value != string(types.OutputFormatTable) {
			return fmt.Errorf("invalid output format. Must be 'json' or 'table'")
		}
		cfg.DefaultOutputFormat = types.OutputFormat(value)
	case "backend":
		cfg.Backend = value
	case "cachettl":
		cfg.CacheTTL, err = atoi()
	case "maxretries":
		cfg.MaxRetries, err = atoi()
	case "retrybasedelay":
		cfg.RetryBaseDelay, err = atoi()
	case "requesttimeout":
		cfg.RequestTimeout, err = atoi()
	case "loglevel":
		cfg.LogLevel = value
	case "coloroutput":
		cfg.ColorOutput = parseBool(value)
	case "supportedextensions":
		cfg.SupportedExtensions = strings.Split(value, ",")
	case "companionmatch":
		cfg.CompanionMatch = value
	case "serveaddr":
		cfg.ServeAddr = value
	case "graph.tenantid":
		cfg.Graph.TenantID = value
	case "graph.clientid":
		cfg.Graph.ClientID = value
	case "graph.redirectport":
		cfg.Graph.RedirectPort, err = atoi()
	case "gdrive.clientid":
		cfg.GDrive.ClientID = value
	case "gdrive.redirectport":
		cfg.GDrive.RedirectPort, err = atoi()
	case "s3.region":
		cfg.S3.Region = value
	case "s3.endpoint":
		cfg.S3.Endpoint = value
	case "s3.usepathstyle":
		cfg.S3.UsePathStyle = parseBool(value)
	case "viewport.width":
		cfg.Viewport.Width, err = atoi()
	case "viewport.height":
		cfg.Viewport.Height, err = atoi()
	case "graph.clientsecret":
		return fmt.Errorf("client secrets are not stored in the config file; set %sGRAPH_CLIENT_SECRET instead", config.EnvPrefix)
	case "gdrive.clientsecret":
		return fmt.Errorf("client secrets are not stored in the config file; set %sGDRIVE_CLIENT_SECRET instead", config.EnvPrefix)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
