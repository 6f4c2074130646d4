package commands

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicefilter/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context selects the data directory, the session storage backend, the
transcription service and the capture settings.

Configuration is stored in ~/.voicefilter/config.yaml`,
}

var configSetContextCmd = &cobra.Command{
	Use:   "set-context <name>",
	Short: "Add or replace a context",
	Long: `Add or replace a context with the specified name.

Example:
  voicefilter config set-context office --openai-api-key sk-... --input-device 2
  voicefilter config set-context archive --storage s3 --s3-bucket meetings --s3-region eu-west-1
  voicefilter config set-context office --extra team=platform`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		str := func(name string) string {
			v, _ := f.GetString(name)
			return v
		}

		c := &cli.Context{DataDir: str("data-dir")}
		if f.Changed("openai-api-key") || f.Changed("openai-base-url") ||
			f.Changed("openai-model") || f.Changed("language") {
			c.OpenAI = &cli.OpenAIConfig{
				APIKey:   str("openai-api-key"),
				BaseURL:  str("openai-base-url"),
				Model:    str("openai-model"),
				Language: str("language"),
			}
		}
		extras, _ := f.GetStringArray("extra")
		for _, pair := range extras {
			k, v, ok := strings.Cut(pair, "=")
			if k = strings.TrimSpace(k); !ok || k == "" {
				return fmt.Errorf("--extra %q: want key=value", pair)
			}
			c.SetExtra(k, v)
		}
		switch backend := str("storage"); backend {
		case cli.StorageLocal:
		case cli.StorageS3:
			if str("s3-bucket") == "" {
				return fmt.Errorf("--s3-bucket is required for s3 storage")
			}
			pathStyle, _ := f.GetBool("s3-path-style")
			c.Storage = &cli.StorageConfig{
				Backend:         backend,
				Bucket:          str("s3-bucket"),
				Prefix:          str("s3-prefix"),
				Region:          str("s3-region"),
				Endpoint:        str("s3-endpoint"),
				AccessKeyID:     str("s3-access-key-id"),
				SecretAccessKey: str("s3-secret-access-key"),
				UsePathStyle:    pathStyle,
			}
		default:
			return fmt.Errorf("unknown storage backend %q", backend)
		}
		if f.Changed("input-device") {
			dev, _ := f.GetInt("input-device")
			c.InputDevice = &dev
		}
		c.VerifyThreshold, _ = f.GetFloat64("verify-threshold")
		c.IdentifyThreshold, _ = f.GetFloat64("identify-threshold")
		c.AutosaveInterval, _ = f.GetInt("autosave")
		c.EnrollmentSeconds, _ = f.GetInt("enrollment-seconds")

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.SetContext(args[0], c); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q saved", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configGetContextsCmd = &cobra.Command{
	Use:   "get-contexts",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			cli.PrintInfo("No contexts configured; using defaults and environment")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSTORAGE\tDATA DIR\tTRANSCRIPTION")
		for _, name := range names {
			c := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			transcription := "off"
			if c.OpenAI != nil && c.OpenAI.APIKey != "" {
				transcription = "openai"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name, c.StorageBackend(), c.DataDir, transcription)
		}
		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the resolved context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		c, err := getContext()
		if err != nil {
			return err
		}
		paths, err := getPaths(c)
		if err != nil {
			return err
		}

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Context: %s\n", c.Name)
		fmt.Printf("Data dir: %s\n", paths.DataDir())
		fmt.Printf("Storage: %s\n", c.StorageBackend())
		if s := c.Storage; s != nil && s.Backend == cli.StorageS3 {
			fmt.Printf("  Bucket: %s\n", s.Bucket)
			if s.Prefix != "" {
				fmt.Printf("  Prefix: %s\n", s.Prefix)
			}
			if s.Endpoint != "" {
				fmt.Printf("  Endpoint: %s\n", s.Endpoint)
			}
			fmt.Printf("  Access key: %s\n", cli.MaskAPIKey(s.AccessKeyID))
		}
		if c.OpenAI != nil {
			fmt.Printf("OpenAI key: %s\n", cli.MaskAPIKey(c.OpenAI.APIKey))
			if c.OpenAI.BaseURL != "" {
				fmt.Printf("  Base URL: %s\n", c.OpenAI.BaseURL)
			}
			if c.OpenAI.Model != "" {
				fmt.Printf("  Model: %s\n", c.OpenAI.Model)
			}
			if c.OpenAI.Language != "" {
				fmt.Printf("  Language: %s\n", c.OpenAI.Language)
			}
		} else {
			fmt.Println("Transcription: off")
		}
		if c.InputDevice != nil {
			fmt.Printf("Input device: %d\n", *c.InputDevice)
		}
		if len(c.Extra) > 0 {
			fmt.Println("Extra:")
			keys := make([]string, 0, len(c.Extra))
			for k := range c.Extra {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Printf("  %s: %s\n", k, c.GetExtra(k))
			}
		}
		return nil
	},
}

func init() {
	f := configSetContextCmd.Flags()
	f.String("data-dir", "", "data directory (default ~/.voicefilter/data)")
	f.String("openai-api-key", "", "OpenAI API key for transcription")
	f.String("openai-base-url", "", "OpenAI-compatible API base URL")
	f.String("openai-model", "", "transcription model")
	f.String("language", "", "transcription language (ISO-639-1)")
	f.String("storage", cli.StorageLocal, "session storage backend (local, s3)")
	f.String("s3-bucket", "", "S3 bucket")
	f.String("s3-prefix", "", "S3 key prefix")
	f.String("s3-region", "", "S3 region")
	f.String("s3-endpoint", "", "S3-compatible endpoint URL")
	f.String("s3-access-key-id", "", "S3 access key ID")
	f.String("s3-secret-access-key", "", "S3 secret access key")
	f.Bool("s3-path-style", false, "use path-style S3 addressing")
	f.Int("input-device", 0, "PortAudio input device index")
	f.Float64("verify-threshold", 0, "verifier similarity threshold")
	f.Float64("identify-threshold", 0, "meeting speaker identification threshold")
	f.Int("autosave", 0, "meeting autosave interval in seconds")
	f.Int("enrollment-seconds", 0, "speech collected per attendee")
	f.StringArray("extra", nil, "free-form setting as key=value (repeatable)")

	configCmd.AddCommand(configSetContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
