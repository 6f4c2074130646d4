package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the voicefilter directories under $HOME.
type Paths struct {
	HomeDir string

	// DataOverride replaces the default data directory when set.
	DataOverride string
}

// NewPaths returns the paths for the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.voicefilter.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.voicefilter/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// DataDir returns the data directory (~/.voicefilter/data by default).
func (p *Paths) DataDir() string {
	if p.DataOverride != "" {
		return p.DataOverride
	}
	return filepath.Join(p.BaseDir(), "data")
}

// ProfilesDir holds the speaker profile database.
func (p *Paths) ProfilesDir() string {
	return filepath.Join(p.DataDir(), "profiles")
}

// ReferencesDir holds the enrolled reference recordings.
func (p *Paths) ReferencesDir() string {
	return filepath.Join(p.DataDir(), "references")
}

// ReferencePath returns the reference recording path of a speaker.
func (p *Paths) ReferencePath(speakerID string) string {
	return filepath.Join(p.ReferencesDir(), speakerID+".wav")
}

// EnsureDataDir creates the data and references directories.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.ReferencesDir(), 0755)
}
