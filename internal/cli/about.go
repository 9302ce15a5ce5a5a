package cli

import (
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/pkg/version"
	"github.com/spf13/cobra"
)

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Display supported backends, formats and config locations",
	RunE:  runAbout,
}

func init() {
	rootCmd.AddCommand(aboutCmd)
}

func runAbout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg, err := loadConfig()
	if err != nil {
		return out.Fail("about", err)
	}
	configPath, _ := config.GetConfigPath()
	projectsPath, _ := config.GetProjectsPath()

	capabilities := map[string]interface{}{
		"version": version.Get().Short(),
		"backends": map[string]interface{}{
			"available": []string{utils.BackendGraph, utils.BackendGDrive, utils.BackendS3},
			"active":    cfg.Backend,
		},
		"formats": map[string]interface{}{
			"supported":  []string{utils.FormatIFC, utils.FormatGLTF, utils.FormatGLB},
			"extensions": cfg.SupportedExtensions,
			"companion":  utils.CompanionExtension,
		},
		"authentication": map[string]interface{}{
			"oauth2_flows": []string{"authorization_code_pkce", "device_code", "client_credentials"},
			"graph_scopes": utils.ScopesGraphUser,
			"gdrive_scope": utils.ScopesGDrive,
		},
		"output_formats": []string{"json", "table"},
		"configuration": map[string]interface{}{
			"config_file":   configPath,
			"projects_file": projectsPath,
		},
	}

	return out.WriteSuccess("about", capabilities)
}
