package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/vad"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/cli"
	"github.com/haivivi/voicefilter/pkg/voiceprint"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage enrolled speaker profiles",
}

var (
	enrollName    string
	enrollWAV     string
	enrollSeconds int
)

// enrollSpeechThreshold is the activity probability a recorded frame needs
// to count toward the enrollment.
const enrollSpeechThreshold = 0.5

var profileEnrollCmd = &cobra.Command{
	Use:   "enroll <speaker-id>",
	Short: "Enroll a speaker from a WAV file or the microphone",
	Long: `Enroll a speaker's reference voice.

With --wav the file is converted to 16 kHz mono and kept as the reference. Otherwise the microphone
records until --seconds of speech have been collected.

Examples:
  voicefilter profile enroll alice --name "Alice" --wav alice.wav
  voicefilter profile enroll bob --seconds 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speakerID := args[0]
		c, err := getContext()
		if err != nil {
			return err
		}
		paths, err := getPaths(c)
		if err != nil {
			return err
		}
		profiles, err := openProfiles(paths)
		if err != nil {
			return err
		}
		defer profiles.Close()

		var data []byte
		if enrollWAV != "" {
			data, err = readWAV16K(enrollWAV)
			if err != nil {
				return err
			}
		} else {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			data, err = recordSpeech(ctx, c, time.Duration(enrollSeconds)*time.Second)
			if err != nil {
				return err
			}
		}

		ref := paths.ReferencePath(speakerID)
		if err := os.WriteFile(ref, wav.Bytes(pcm.L16Mono16K, data), 0644); err != nil {
			return fmt.Errorf("write reference: %w", err)
		}

		name := enrollName
		if name == "" {
			name = speakerID
		}
		prof := &voiceprint.Profile{
			SpeakerID:  speakerID,
			Name:       name,
			EnrolledAt: time.Now(),
			AudioPath:  ref,
		}
		if err := profiles.Put(cmd.Context(), prof); err != nil {
			return err
		}
		cli.PrintSuccess("Enrolled %s (%s of audio)", name, cli.FormatDuration(pcm.L16Mono16K.Duration(int64(len(data)))))
		return nil
	},
}

// recordSpeech records from the microphone until want of speech has been
// collected. Frames below the speech threshold are dropped.
func recordSpeech(ctx context.Context, c *cli.Context, want time.Duration) ([]byte, error) {
	if want <= 0 {
		return nil, errors.New("--seconds must be positive")
	}
	f := pcm.L16Mono16K
	need := int(f.BytesInDuration(want))
	detector := vad.NewEnergy()
	defer detector.Close()

	frames := make(chan []byte, 64)
	errc := make(chan error, 1)
	src := microphone(c, f)
	if err := src.Start(func(frame []byte) {
		select {
		case frames <- frame:
		default:
			slog.Warn("enrollment frame dropped")
		}
	}, func(err error) {
		select {
		case errc <- err:
		default:
		}
	}); err != nil {
		return nil, err
	}
	defer src.Stop()

	cli.PrintInfo("Speak now, collecting %s of speech (Ctrl+C to abort)", cli.FormatDuration(want))
	buf := make([]byte, 0, need)
	for len(buf) < need {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-errc:
			return nil, err
		case frame := <-frames:
			prob, err := detector.Process(pcm.Float32s(frame))
			if err != nil {
				return nil, err
			}
			if float64(prob) < enrollSpeechThreshold {
				continue
			}
			buf = append(buf, frame...)
			fmt.Fprintf(os.Stderr, "\r%s %3.0f%%", cli.Meter(float64(len(buf))/float64(need), 30),
				100*float64(len(buf))/float64(need))
		}
	}
	fmt.Fprintln(os.Stderr)
	return buf[:need], nil
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List enrolled speakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		paths, err := getPaths(c)
		if err != nil {
			return err
		}
		profiles, err := openProfiles(paths)
		if err != nil {
			return err
		}
		defer profiles.Close()

		list, err := profiles.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			cli.PrintInfo("No profiles enrolled.")
			return nil
		}
		return outputResult(list)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <speaker-id>",
	Short: "Delete an enrolled speaker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		paths, err := getPaths(c)
		if err != nil {
			return err
		}
		profiles, err := openProfiles(paths)
		if err != nil {
			return err
		}
		defer profiles.Close()

		prof, err := profiles.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := profiles.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := os.Remove(prof.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			cli.PrintWarning("Could not remove %s: %v", prof.AudioPath, err)
		}
		cli.PrintSuccess("Deleted profile %q", args[0])
		return nil
	},
}

func init() {
	profileEnrollCmd.Flags().StringVar(&enrollName, "name", "", "display name (default: the speaker id)")
	profileEnrollCmd.Flags().StringVar(&enrollWAV, "wav", "", "16-bit PCM WAV file to enroll from")
	profileEnrollCmd.Flags().IntVar(&enrollSeconds, "seconds", 10, "seconds of speech to record from the microphone")

	profileCmd.AddCommand(profileEnrollCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileDeleteCmd)
}
