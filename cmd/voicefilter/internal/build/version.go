// Package build holds version information injected at link time:
//
//	go build -ldflags "-X github.com/haivivi/voicefilter/cmd/voicefilter/internal/build.Version=v0.3.0 \
//	  -X github.com/haivivi/voicefilter/cmd/voicefilter/internal/build.Commit=$(git rev-parse --short HEAD)" \
//	  ./cmd/voicefilter
package build

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the version information as a structured value.
type Info struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:  Version,
		Commit:   Commit,
		Date:     Date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one-line version string.
func String() string {
	i := Get()
	return fmt.Sprintf("voicefilter %s (%s) built %s %s", i.Version, i.Commit, i.Date, i.Platform)
}
