package commands

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/vad"
	"github.com/haivivi/voicefilter/pkg/cli"
	"github.com/haivivi/voicefilter/pkg/voiceprint"
)

var (
	verifyWAV       string
	verifyThreshold float64
	verifySpeech    float64
)

const (
	panelWidth   = 72
	redrawPeriod = 100 * time.Millisecond
)

var verifyCmd = &cobra.Command{
	Use:   "verify <speaker-id>",
	Short: "Continuously verify a voice against an enrolled speaker",
	Long: `Verify live audio against an enrolled speaker.

Without --wav the microphone is monitored until Ctrl+C and a live panel
shows the decision. With --wav the file is replayed in real time and each
decision change is printed.

Examples:
  voicefilter verify alice
  voicefilter verify alice --wav sample.wav --threshold 0.75`,
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

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		threshold := verifyThreshold
		if threshold <= 0 {
			threshold = c.VerifyThreshold
		}

		view := newVerifyView(speakerID, verifyWAV == "")
		opts := []voiceprint.VerifierOption{
			voiceprint.WithObserver(view.event),
			voiceprint.WithVerifierLogger(slog.Default()),
		}
		if threshold > 0 {
			opts = append(opts, voiceprint.WithThreshold(threshold))
		}
		v := voiceprint.NewVerifier(speakerID, profiles, opts...)
		defer v.Close()
		if err := v.Initialize(ctx); err != nil {
			return err
		}

		detector := vad.NewEnergy()
		defer detector.Close()

		var (
			src  capture.Source
			done <-chan struct{}
		)
		if verifyWAV != "" {
			data, err := readWAV16K(verifyWAV)
			if err != nil {
				return err
			}
			w := capture.NewPCMSource(pcm.L16Mono16K, data, capture.DefaultFrameSamples, true)
			src, done = w, w.Done()
		} else {
			src = microphone(c, pcm.L16Mono16K)
		}

		errc := make(chan error, 1)
		err = src.Start(func(frame []byte) {
			samples := pcm.Float32s(frame)
			prob, err := detector.Process(samples)
			if err != nil {
				return
			}
			speech := float64(prob) >= verifySpeech
			view.frame(pcm.Level(samples), speech, v.ProcessAudio(frame, speech))
		}, func(err error) {
			select {
			case errc <- err:
			default:
			}
		})
		if err != nil {
			return err
		}
		defer src.Stop()

		ticker := time.NewTicker(redrawPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				view.finish(v)
				return nil
			case <-done:
				src.Stop()
				v.Wait()
				view.finish(v)
				return nil
			case err := <-errc:
				return err
			case <-ticker.C:
				view.redraw()
			}
		}
	},
}

// verifyView renders verifier state, either as a live panel or as one line
// per event.
type verifyView struct {
	styles    cli.Styles
	speakerID string
	live      bool
	start     time.Time

	mu       sync.Mutex
	level    float64
	speech   bool
	decision voiceprint.Decision
	sim      float64
	attempts int
	log      []string
}

func newVerifyView(speakerID string, live bool) *verifyView {
	return &verifyView{
		styles:    cli.NewStyles(cli.DefaultTheme),
		speakerID: speakerID,
		live:      live,
		start:     time.Now(),
	}
}

func (w *verifyView) frame(level float64, speech bool, d voiceprint.Decision) {
	w.mu.Lock()
	w.level, w.speech, w.decision = level, speech, d
	w.mu.Unlock()
}

func (w *verifyView) event(e voiceprint.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	elapsed := cli.FormatDuration(time.Since(w.start).Truncate(100 * time.Millisecond))
	var line string
	switch e.Kind {
	case voiceprint.EventVerified:
		w.sim = e.Similarity
		w.attempts++
		line = fmt.Sprintf("%s similarity %.3f -> %s", elapsed, e.Similarity, e.Decision)
	case voiceprint.EventError:
		line = fmt.Sprintf("%s error: %v", elapsed, e.Err)
	default:
		line = fmt.Sprintf("%s %s", elapsed, e.Kind)
	}
	w.decision = e.Decision
	w.log = append(w.log, line)
	if len(w.log) > 50 {
		w.log = w.log[len(w.log)-50:]
	}
	if !w.live {
		fmt.Println(line)
	}
}

func (w *verifyView) redraw() {
	if !w.live {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	decision := w.decision.String()
	if w.decision == voiceprint.DecisionUnauthorized {
		decision = w.styles.Alert.Render(decision)
	}
	activity := "silence"
	if w.speech {
		activity = "speech"
	}
	p := cli.Panel{
		Styles: w.styles,
		Title:  "verify " + w.speakerID,
		Status: cli.FormatDuration(time.Since(w.start).Truncate(time.Second)),
		Sections: []cli.Section{
			{Label: " Input ", Rows: 2, Lines: []string{
				fmt.Sprintf("level %s  %s", cli.Meter(w.level, 30), activity),
			}},
			{Label: " Decision ", Rows: 2, Lines: []string{
				fmt.Sprintf("%s  similarity %.3f  attempts %d", decision, w.sim, w.attempts),
			}},
			{Label: " Events ", Rows: 8, Lines: w.log},
		},
		Help: "Ctrl+C to stop",
	}
	fmt.Fprint(os.Stderr, "\033[H\033[2J"+p.Render(panelWidth)+"\n")
}

func (w *verifyView) finish(v *voiceprint.Verifier) {
	w.mu.Lock()
	attempts := w.attempts
	w.mu.Unlock()
	d := v.Decision()
	if d == voiceprint.DecisionAuthorized {
		cli.PrintSuccess("%s: %s after %d attempts", w.speakerID, d, attempts)
	} else {
		cli.PrintWarning("%s: %s after %d attempts", w.speakerID, d, attempts)
	}
}

func init() {
	verifyCmd.Flags().StringVar(&verifyWAV, "wav", "", "replay a WAV file instead of the microphone")
	verifyCmd.Flags().Float64Var(&verifyThreshold, "threshold", 0, "similarity threshold (default: context setting or 0.7)")
	verifyCmd.Flags().Float64Var(&verifySpeech, "speech-threshold", 0.5, "activity probability at which a frame counts as speech")
}
