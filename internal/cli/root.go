package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/pkg/version"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
)

var rootCmd = &cobra.Command{
	Use:   "bimview",
	Short: "BIM model viewer for SharePoint, Google Drive and S3",
	Long: `bimview browses project folders on a remote drive, loads the IFC and
glTF models you select into one scene and frames a camera around them.

Commands run one-shot from the terminal, or 'bimview serve' keeps a
session open behind a local HTTP API with a live progress stream.

All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			RedactSensitive: true,
			EnableColor:     term.IsTerminal(int(os.Stderr.Fd())),
			EnableTimestamp: true,
			MaxFileSize:     100 * 1024 * 1024,
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		var err error
		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "", "Authentication profile to use (default from config)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Backend, "backend", "", "Remote store: graph, gdrive or s3 (default from config)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.DriveID, "drive-id", "", "Drive to browse (S3: bucket name)")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Log every HTTP request")
	rootCmd.PersistentFlags().IntVar(&globalFlags.CacheTTL, "cache-ttl", -1, "Folder listing TTL in seconds, 0 keeps listings for the session (default from config)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
}

func validateGlobalFlags() error {
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	switch globalFlags.Backend {
	case "", utils.BackendGraph, utils.BackendGDrive, utils.BackendS3:
	default:
		return fmt.Errorf("invalid backend: %s (must be 'graph', 'gdrive', or 's3')", globalFlags.Backend)
	}
	return nil
}

// exitError ends the process with code after the command has already
// written its own output
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and exits with the command's status
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(utils.ExitInvalidArgument)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
