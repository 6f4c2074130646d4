// Package pcm provides format arithmetic and sample conversion for 16-bit
// little-endian PCM audio.
//
// The capture, verification and meeting pipelines all exchange audio as raw
// byte frames. A Format carries the sample rate, channel count and bit depth
// needed to turn byte lengths into durations and back:
//
//	// 0.5 s of 16 kHz mono audio
//	n := pcm.L16Mono16K.BytesInDuration(500 * time.Millisecond) // 16000
//
//	// Normalized samples for feature extraction
//	samples := pcm.Float32s(frame)
package pcm
