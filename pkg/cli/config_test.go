package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"1234", "****"},
		{"12345678", "********"},
		{"123456789", "1234*6789"},
		{"sk-1234567890abcdef", "sk-1***********cdef"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != path || len(cfg.Contexts) != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("loading created the config file")
	}
}

func TestConfig_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicefilter", "config.yaml")
	cfg, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatal(err)
	}
	device := 2
	err = cfg.SetContext("office", &Context{
		DataDir:     "/srv/voicefilter",
		InputDevice: &device,
		OpenAI:      &OpenAIConfig{APIKey: "sk-test", Model: "whisper-1"},
		Storage: &StorageConfig{
			Backend: StorageS3,
			Bucket:  "meetings",
			Prefix:  "team",
		},
		VerifyThreshold:  0.75,
		AutosaveInterval: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("office"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %o", perm)
	}

	loaded, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := loaded.ResolveContext("")
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Name != "office" || ctx.DataDir != "/srv/voicefilter" || ctx.VerifyThreshold != 0.75 {
		t.Errorf("context = %+v", ctx)
	}
	if ctx.InputDevice == nil || *ctx.InputDevice != 2 {
		t.Errorf("InputDevice = %v", ctx.InputDevice)
	}
	if ctx.StorageBackend() != StorageS3 || ctx.Storage.Bucket != "meetings" {
		t.Errorf("storage = %+v", ctx.Storage)
	}
	if ctx.OpenAI == nil || ctx.OpenAI.APIKey != "sk-test" {
		t.Errorf("openai = %+v", ctx.OpenAI)
	}
}

func TestConfig_Contexts(t *testing.T) {
	cfg, err := LoadConfigWithPath(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := cfg.ResolveContext("")
	if err != nil || ctx.Name != "default" {
		t.Fatalf("unconfigured ResolveContext = %+v, %v", ctx, err)
	}
	if _, err := cfg.ResolveContext("missing"); err == nil {
		t.Error("resolved a missing context")
	}
	if err := cfg.UseContext("missing"); err == nil {
		t.Error("used a missing context")
	}

	for _, name := range []string{"lab", "home"} {
		if err := cfg.SetContext(name, &Context{}); err != nil {
			t.Fatal(err)
		}
	}
	if got := strings.Join(cfg.ListContexts(), ","); got != "home,lab" {
		t.Errorf("ListContexts = %s", got)
	}
	if err := cfg.UseContext("lab"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.DeleteContext("lab"); err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext = %q after delete", cfg.CurrentContext)
	}
	if err := cfg.DeleteContext("lab"); err == nil {
		t.Error("deleted a context twice")
	}
}

func TestContext_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"VOICEFILTER_DATA_DIR":             "/data",
		"VOICEFILTER_OPENAI_API_KEY":       "sk-env",
		"VOICEFILTER_S3_BUCKET":            "archive",
		"VOICEFILTER_S3_REGION":            "eu-west-1",
		"VOICEFILTER_S3_ACCESS_KEY_ID":     "AKIA",
		"VOICEFILTER_S3_SECRET_ACCESS_KEY": "secret",
	}
	ctx := &Context{OpenAI: &OpenAIConfig{APIKey: "sk-file", Model: "whisper-1"}}
	ctx.ApplyEnv(func(k string) string { return env[k] })

	if ctx.DataDir != "/data" {
		t.Errorf("DataDir = %q", ctx.DataDir)
	}
	if ctx.OpenAI.APIKey != "sk-env" || ctx.OpenAI.Model != "whisper-1" {
		t.Errorf("openai = %+v", ctx.OpenAI)
	}
	if ctx.StorageBackend() != StorageS3 || ctx.Storage.Bucket != "archive" || ctx.Storage.Region != "eu-west-1" {
		t.Errorf("storage = %+v", ctx.Storage)
	}
	if ctx.Storage.AccessKeyID != "AKIA" || ctx.Storage.SecretAccessKey != "secret" {
		t.Errorf("credentials = %+v", ctx.Storage)
	}

	empty := &Context{}
	empty.ApplyEnv(func(string) string { return "" })
	if empty.OpenAI != nil || empty.Storage != nil || empty.StorageBackend() != StorageLocal {
		t.Errorf("empty env changed context: %+v", empty)
	}
}

func TestContext_Extra(t *testing.T) {
	ctx := &Context{}
	if got := ctx.GetExtra("language"); got != "" {
		t.Errorf("GetExtra on nil map = %q", got)
	}
	ctx.SetExtra("language", "en")
	if got := ctx.GetExtra("language"); got != "en" {
		t.Errorf("GetExtra = %q", got)
	}
}
