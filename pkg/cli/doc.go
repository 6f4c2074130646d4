// Package cli provides the configuration, paths and output helpers of the
// voicefilter command.
//
// Configuration is stored in ~/.voicefilter/config.yaml and holds named
// contexts, similar to kubectl. A context selects the storage backend, the
// transcription service and the audio and threshold settings; environment
// variables override the selected context:
//
//	VOICEFILTER_DATA_DIR            local data directory
//	VOICEFILTER_OPENAI_API_KEY      transcription API key
//	VOICEFILTER_OPENAI_BASE_URL     transcription endpoint
//	VOICEFILTER_S3_BUCKET           enables the S3 session store
//	VOICEFILTER_S3_PREFIX
//	VOICEFILTER_S3_REGION
//	VOICEFILTER_S3_ENDPOINT
//	VOICEFILTER_S3_ACCESS_KEY_ID
//	VOICEFILTER_S3_SECRET_ACCESS_KEY
//
// Example usage:
//
//	cfg, err := cli.LoadConfig()
//	ctx, err := cfg.ResolveContext("")
//	ctx.ApplyEnv(os.Getenv)
//
//	cli.Output(profiles, cli.OutputOptions{Format: cli.FormatJSON})
package cli
