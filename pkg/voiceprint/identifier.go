package voiceprint

import (
	"sync"

	"github.com/haivivi/voicefilter/pkg/audio/mfcc"
)

// UnknownSpeaker is the speaker id reported when no candidate matches.
const UnknownSpeaker = "unknown"

// DefaultIdentifyThreshold is the minimum similarity for a match.
const DefaultIdentifyThreshold = 0.65

// Match is the result of Identify.
type Match struct {
	SpeakerID   string
	SpeakerName string
	Confidence  float64
}

// Unknown reports whether no enrolled speaker matched.
func (m Match) Unknown() bool {
	return m.SpeakerID == UnknownSpeaker
}

type candidate struct {
	id   string
	name string
	ref  *Reference
}

// Identifier attributes speech to one of several enrolled speakers. It is
// safe for concurrent use.
type Identifier struct {
	ext       *mfcc.Extractor
	threshold float64

	mu         sync.RWMutex
	candidates []candidate
}

// NewIdentifier creates an Identifier. A threshold outside (0, 1] selects
// DefaultIdentifyThreshold.
func NewIdentifier(threshold float64) *Identifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultIdentifyThreshold
	}
	ext, _ := mfcc.New(mfcc.DefaultConfig())
	return &Identifier{ext: ext, threshold: threshold}
}

// SampleRate returns the rate Identify expects.
func (id *Identifier) SampleRate() int {
	return id.ext.Config().SampleRate
}

// Enroll adds or replaces a speaker.
func (id *Identifier) Enroll(speakerID, name string, samples []float32) {
	c := candidate{id: speakerID, name: name, ref: NewReference(id.ext, samples)}
	id.mu.Lock()
	defer id.mu.Unlock()
	for i := range id.candidates {
		if id.candidates[i].id == speakerID {
			id.candidates[i] = c
			return
		}
	}
	id.candidates = append(id.candidates, c)
}

// EnrollFile enrolls a speaker from a WAV file.
func (id *Identifier) EnrollFile(speakerID, name, path string) error {
	samples, err := LoadSamples(path, id.SampleRate())
	if err != nil {
		return err
	}
	id.Enroll(speakerID, name, samples)
	return nil
}

// Len returns the number of enrolled speakers.
func (id *Identifier) Len() int {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return len(id.candidates)
}

// Identify returns the best-scoring speaker, or UnknownSpeaker with the
// best score when nothing reaches the threshold.
func (id *Identifier) Identify(samples []float32) Match {
	id.mu.RLock()
	defer id.mu.RUnlock()

	best := Match{SpeakerID: UnknownSpeaker, SpeakerName: "Unknown"}
	var bestCand *candidate
	for i := range id.candidates {
		c := &id.candidates[i]
		s := c.ref.Score(id.ext, samples)
		if s > best.Confidence {
			best.Confidence = s
			bestCand = c
		}
	}
	if bestCand != nil && best.Confidence >= id.threshold {
		best.SpeakerID = bestCand.id
		best.SpeakerName = bestCand.name
	}
	return best
}

// Reset removes all speakers.
func (id *Identifier) Reset() {
	id.mu.Lock()
	id.candidates = nil
	id.mu.Unlock()
}
