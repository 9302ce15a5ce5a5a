package cli

import (
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/pkg/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit and build details of bimview",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := GetGlobalFlags()
		info := version.Get()
		if flags.OutputFormat == types.OutputFormatTable {
			cmd.Println(info.String())
			return nil
		}
		return NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose).WriteSuccess("version", info)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
