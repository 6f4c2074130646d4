package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the configuration directory name under $HOME.
	DefaultBaseDir = ".voicefilter"
	// DefaultConfigFile is the configuration filename.
	DefaultConfigFile = "config.yaml"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config is the on-disk CLI configuration.
type Config struct {
	// CurrentContext is the name of the active context.
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts maps context names to settings.
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is one named set of settings.
type Context struct {
	Name string `yaml:"name"`

	// DataDir holds profiles, reference audio and local sessions.
	// Defaults to ~/.voicefilter/data.
	DataDir string `yaml:"data_dir,omitempty"`

	Storage *StorageConfig `yaml:"storage,omitempty"`
	OpenAI  *OpenAIConfig  `yaml:"openai,omitempty"`

	// InputDevice is a PortAudio device index; nil selects the default.
	InputDevice *int `yaml:"input_device,omitempty"`

	// VerifyThreshold overrides the verifier similarity threshold.
	VerifyThreshold float64 `yaml:"verify_threshold,omitempty"`

	// IdentifyThreshold overrides the meeting speaker threshold.
	IdentifyThreshold float64 `yaml:"identify_threshold,omitempty"`

	// AutosaveInterval is the meeting autosave period in seconds.
	AutosaveInterval int `yaml:"autosave_interval,omitempty"`

	// EnrollmentSeconds is the speech collected per attendee.
	EnrollmentSeconds int `yaml:"enrollment_seconds,omitempty"`

	// Extra stores free-form settings.
	Extra map[string]string `yaml:"extra,omitempty"`
}

// StorageConfig selects where meeting sessions are kept.
type StorageConfig struct {
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
}

// OpenAIConfig configures the transcription service.
type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Language string `yaml:"language,omitempty"`
}

// LoadConfig loads the configuration from ~/.voicefilter/config.yaml.
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath("")
}

// LoadConfigWithPath loads configuration from a custom path. A missing file
// yields an empty configuration that is written on the first Save.
func LoadConfigWithPath(customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, DefaultConfigFile)
	}

	cfg := &Config{
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		ctx.Name = name
	}
	cfg.configPath = configPath
	return cfg, nil
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path.
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// SetContext adds or replaces a context.
func (c *Config) SetContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one if name is
// empty. Without a current context an empty default context is returned so
// the tool works unconfigured.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return &Context{Name: "default"}, nil
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns all context names, sorted.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ApplyEnv overrides settings from VOICEFILTER_* environment variables.
func (ctx *Context) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&ctx.DataDir, "VOICEFILTER_DATA_DIR")

	if getenv("VOICEFILTER_OPENAI_API_KEY") != "" || getenv("VOICEFILTER_OPENAI_BASE_URL") != "" {
		if ctx.OpenAI == nil {
			ctx.OpenAI = &OpenAIConfig{}
		}
		set(&ctx.OpenAI.APIKey, "VOICEFILTER_OPENAI_API_KEY")
		set(&ctx.OpenAI.BaseURL, "VOICEFILTER_OPENAI_BASE_URL")
	}

	if bucket := getenv("VOICEFILTER_S3_BUCKET"); bucket != "" {
		if ctx.Storage == nil {
			ctx.Storage = &StorageConfig{}
		}
		ctx.Storage.Backend = StorageS3
		ctx.Storage.Bucket = bucket
	}
	if ctx.Storage != nil {
		set(&ctx.Storage.Prefix, "VOICEFILTER_S3_PREFIX")
		set(&ctx.Storage.Region, "VOICEFILTER_S3_REGION")
		set(&ctx.Storage.Endpoint, "VOICEFILTER_S3_ENDPOINT")
		set(&ctx.Storage.AccessKeyID, "VOICEFILTER_S3_ACCESS_KEY_ID")
		set(&ctx.Storage.SecretAccessKey, "VOICEFILTER_S3_SECRET_ACCESS_KEY")
	}
}

// StorageBackend returns the configured backend, local by default.
func (ctx *Context) StorageBackend() string {
	if ctx.Storage == nil || ctx.Storage.Backend == "" {
		return StorageLocal
	}
	return ctx.Storage.Backend
}

// GetExtra returns an extra value for the context.
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context.
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// MaskAPIKey masks the API key for display.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
