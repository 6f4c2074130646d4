package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	outputJSON  bool
	verbose     bool

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "voicefilter",
	Short: "Speaker verification and meeting capture",
	Long: `voicefilter - continuous speaker verification and meeting capture.

Enroll a speaker's voice once, then verify live audio against it, or record
a meeting where every attendee is enrolled first and each turn is
attributed and transcribed.

Configuration is stored in ~/.voicefilter/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Enroll a speaker from a recording
  voicefilter profile enroll alice --name "Alice" --wav alice.wav

  # Verify the microphone against the profile
  voicefilter verify alice

  # Record a meeting
  voicefilter meeting run --title "Weekly sync" --host "Alice:Lead" --attendee "Bob:Dev"
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.voicefilter/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(meetingCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	globalConfig, err = cli.LoadConfigWithPath(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config: %v\n", err)
	}
}

func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// getContext returns the selected context with environment overrides
// applied.
func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	c, err := cfg.ResolveContext(contextName)
	if err != nil {
		return nil, err
	}
	resolved := *c
	if c.OpenAI != nil {
		o := *c.OpenAI
		resolved.OpenAI = &o
	}
	if c.Storage != nil {
		s := *c.Storage
		resolved.Storage = &s
	}
	resolved.ApplyEnv(os.Getenv)
	slog.Debug("using context", "context", resolved.Name)
	return &resolved, nil
}

// getPaths returns the directories for the selected context.
func getPaths(c *cli.Context) (*cli.Paths, error) {
	p, err := cli.NewPaths()
	if err != nil {
		return nil, err
	}
	p.DataOverride = c.DataDir
	return p, nil
}

// outputResult writes result as YAML, or JSON with --json.
func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
