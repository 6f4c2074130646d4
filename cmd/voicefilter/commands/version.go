package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/cmd/voicefilter/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputJSON {
			return outputResult(build.Get())
		}
		fmt.Println(build.String())
		if verbose {
			fmt.Printf("  go:     %s\n", build.Get().Go)
			if cfg, err := getConfig(); err == nil {
				fmt.Printf("  config: %s\n", cfg.Path())
			}
		}
		return nil
	},
}
