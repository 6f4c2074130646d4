// Package main provides the voicefilter CLI.
//
// Usage:
//
//	voicefilter [flags] <command> [args]
//
// Commands:
//
//	profile  - enroll, list and delete speaker profiles
//	verify   - continuously verify a speaker against their profile
//	meeting  - record meetings with per-speaker transcripts
//	devices  - list audio input devices
//	config   - manage contexts
//	version  - print the version
//
// Configuration:
//
//	The CLI stores configuration in ~/.voicefilter/config.yaml.
//	Use 'voicefilter config' commands to manage contexts.
package main

import (
	"os"

	"github.com/haivivi/voicefilter/cmd/voicefilter/commands"
	"github.com/haivivi/voicefilter/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
