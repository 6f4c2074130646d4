package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Long: `List the microphones PortAudio can open.

Select one for a context with:
  voicefilter config set-context default --input-device <index>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := capture.Devices()
		if err != nil {
			return err
		}
		if outputJSON || outputFile != "" {
			return outputResult(devs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEFAULT\tINDEX\tNAME\tCHANNELS\tRATE")
		for _, d := range devs {
			mark := ""
			if d.IsDefault {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%.0f\n", mark, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
		}
		return w.Flush()
	},
}
