package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dl-alexandre/bimview/internal/auth"
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/internal/viewer"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage sign-in to Microsoft 365 (graph backend) or Google (gdrive backend)",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the browser",
	Long:  "Run the OAuth2 authorization code flow with PKCE and store the resulting credentials",
	RunE:  runAuthLogin,
}

var authDeviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Sign in with a device code",
	Long:  "Run the device code flow, for machines without a browser",
	RunE:  runAuthDevice,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  "Delete stored credentials for the current or specified profile",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display current authentication status and credential information",
	RunE:  runAuthStatus,
}

var authProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List credential profiles",
	Long:  "Display all stored credential profiles",
	RunE:  runAuthProfiles,
}

var (
	authNoBrowser bool
	authTimeout   time.Duration
	clientID      string
	clientSecret  string
)

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the sign-in URL and paste the redirect back instead of opening a browser")
	authLoginCmd.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "How long to wait for the browser callback")
	for _, c := range []*cobra.Command{authLoginCmd, authDeviceCmd} {
		c.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID (overrides config)")
		c.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (overrides config)")
	}

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authDeviceCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authProfilesCmd)
	rootCmd.AddCommand(authCmd)
}

// authManager loads config, applies client flag overrides and builds the
// credential manager for the configured backend
func authManager(out *OutputWriter, command string) (*auth.Manager, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, out.Fail(command, err)
	}
	if cfg.Backend == utils.BackendS3 {
		return nil, nil, out.Fail(command, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"the s3 backend signs requests with AWS credentials; there is nothing to log in to").Build()))
	}

	switch cfg.Backend {
	case utils.BackendGraph:
		if clientID != "" {
			cfg.Graph.ClientID = clientID
		}
		if clientSecret != "" {
			cfg.Graph.ClientSecret = clientSecret
		}
	case utils.BackendGDrive:
		if clientID != "" {
			cfg.GDrive.ClientID = clientID
		}
		if clientSecret != "" {
			cfg.GDrive.ClientSecret = clientSecret
		}
	}

	mgr, err := viewer.NewAuthManager(cfg, logger)
	if err != nil {
		return nil, nil, out.Fail(command, err)
	}
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}
	return mgr, cfg, nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, cfg, err := authManager(out, "auth.login")
	if err != nil {
		return err
	}
	profile := profileFor(cfg)

	creds, err := mgr.Authenticate(cmd.Context(), profile, openBrowser, auth.OAuthAuthOptions{
		NoBrowser: authNoBrowser,
		Out:       os.Stderr,
		In:        os.Stdin,
		Timeout:   authTimeout,
	})
	if err != nil {
		return out.Fail("auth.login", err)
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"profile":        profile,
		"provider":       creds.Provider,
		"account":        creds.Account,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthDevice(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, cfg, err := authManager(out, "auth.device")
	if err != nil {
		return err
	}
	profile := profileFor(cfg)

	out.Log("Using device code authentication flow...")
	creds, err := mgr.AuthenticateWithDeviceCode(cmd.Context(), profile, os.Stderr)
	if err != nil {
		return out.Fail("auth.device", err)
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.device", map[string]interface{}{
		"profile":        profile,
		"provider":       creds.Provider,
		"account":        creds.Account,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, cfg, err := authManager(out, "auth.logout")
	if err != nil {
		return err
	}
	profile := profileFor(cfg)

	if err := mgr.DeleteCredentials(profile); err != nil {
		return out.Fail("auth.logout", utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No credentials found for profile '%s'", profile)).Build()))
	}

	out.Log("Credentials removed for profile: %s", profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": profile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, cfg, err := authManager(out, "auth.status")
	if err != nil {
		return err
	}
	profile := profileFor(cfg)

	creds, err := mgr.LoadCredentials(profile)
	if err != nil {
		return out.WriteSuccess("auth.status", map[string]interface{}{
			"profile":        profile,
			"backend":        cfg.Backend,
			"authenticated":  false,
			"storageBackend": mgr.GetStorageBackend(),
		})
	}

	// a refresh token keeps an expired login usable
	expired := time.Now().After(creds.ExpiryDate)
	authenticated := !expired || creds.RefreshToken != ""

	return out.WriteSuccess("auth.status", map[string]interface{}{
		"profile":        profile,
		"backend":        cfg.Backend,
		"authenticated":  authenticated,
		"provider":       creds.Provider,
		"account":        creds.Account,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"type":           creds.Type,
		"needsRefresh":   mgr.NeedsRefresh(creds),
		"expired":        expired,
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthProfiles(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, _, err := authManager(out, "auth.profiles")
	if err != nil {
		return err
	}

	profiles, err := mgr.ListProfiles()
	if err != nil {
		return out.Fail("auth.profiles", utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to list profiles: %v", err)).Build()))
	}

	var profileDetails []map[string]interface{}
	for _, profile := range profiles {
		detail := map[string]interface{}{
			"profile": profile,
		}

		creds, err := mgr.LoadCredentials(profile)
		if err == nil {
			detail["authenticated"] = true
			detail["provider"] = creds.Provider
			detail["account"] = creds.Account
			detail["type"] = creds.Type
			detail["expiry"] = creds.ExpiryDate.Format(time.RFC3339)
			detail["needsRefresh"] = mgr.NeedsRefresh(creds)
		} else {
			detail["authenticated"] = false
			detail["error"] = err.Error()
		}

		profileDetails = append(profileDetails, detail)
	}

	return out.WriteSuccess("auth.profiles", map[string]interface{}{
		"profiles":       profileDetails,
		"count":          len(profiles),
		"storageBackend": mgr.GetStorageBackend(),
	})
}
