// Package voiceprint decides whether audio belongs to an enrolled speaker.
//
// # Similarity
//
// Two buffers are compared by the statistics of their MFCC frames: the
// per-coefficient mean and variance of each side form a normalized
// Mahalanobis-like distance
//
//	d = sqrt( Σ (meanA-meanB)² / ((varA+varB)/2 + 0.001) / numCoeffs )
//
// mapped to a score with exp(-d/2). Buffers shorter than 100 ms score a
// fixed 0.3.
//
// # Verification
//
// A Verifier consumes streamed frames with a speech flag and maintains a
// smoothed Decision for one enrolled speaker. Authorization needs two
// consecutive passes; a single failure revokes it. See Verifier.
//
// # Identification
//
// An Identifier scores a speech segment against several enrolled speakers
// and returns the best match above a threshold.
package voiceprint

import (
	"errors"
	"fmt"
)

// ErrProfileNotFound is returned when no profile exists for a speaker id.
var ErrProfileNotFound = errors.New("voiceprint: profile not found")

// Decision is the verification state for the current voice.
type Decision int

const (
	// DecisionUnknown means the verifier has not been initialized.
	DecisionUnknown Decision = iota

	// DecisionPending means a new voice is speaking and has not yet been
	// verified.
	DecisionPending

	// DecisionAuthorized means the voice passed two consecutive attempts.
	DecisionAuthorized

	// DecisionUnauthorized means the last attempt failed.
	DecisionUnauthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionUnknown:
		return "unknown"
	case DecisionPending:
		return "pending"
	case DecisionAuthorized:
		return "authorized"
	case DecisionUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}
