package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
)

// ModelWhisper1 is the default transcription model.
const ModelWhisper1 = "whisper-1"

type config struct {
	model      string
	language   string
	prompt     string
	baseURL    string
	httpClient *http.Client
}

// Option configures an OpenAI transcriber.
type Option func(*config)

// WithModel sets the transcription model name.
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLanguage sets the ISO-639-1 input language hint, e.g. "en".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithPrompt sets text that guides the model's style or vocabulary, such as
// attendee names.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// OpenAI implements [Transcriber] with the OpenAI audio transcription API.
type OpenAI struct {
	client *openai.Client
	cfg    config
}

var _ Transcriber = (*OpenAI)(nil)

// NewOpenAI creates a transcriber authenticated with apiKey.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{
		model:      ModelWhisper1,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &OpenAI{client: &client, cfg: cfg}
}

// Model returns the configured model name.
func (o *OpenAI) Model() string {
	return o.cfg.model
}

// Transcribe uploads audio as a WAV file and returns the transcript text.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, format pcm.Format) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	params := openai.AudioTranscriptionNewParams{
		File:           namedReader{Reader: bytes.NewReader(wav.Bytes(format, audio)), name: "segment.wav"},
		Model:          openai.AudioModel(o.cfg.model),
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	if o.cfg.language != "" {
		params.Language = openai.String(o.cfg.language)
	}
	if o.cfg.prompt != "" {
		params.Prompt = openai.String(o.cfg.prompt)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// namedReader gives the multipart upload a file name and content type; the
// API infers the audio container from the extension.
type namedReader struct {
	*bytes.Reader
	name string
}

func (r namedReader) Filename() string    { return r.name }
func (r namedReader) ContentType() string { return "audio/wav" }
