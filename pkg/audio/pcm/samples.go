package pcm

// Float32s converts little-endian int16 PCM bytes to normalized float32
// samples in [-1, 1). A trailing odd byte is ignored.
func Float32s(frame []byte) []float32 {
	n := len(frame) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(frame[2*i]) | int16(frame[2*i+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Int16s converts little-endian PCM bytes to int16 samples.
func Int16s(frame []byte) []int16 {
	n := len(frame) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(frame[2*i]) | int16(frame[2*i+1])<<8
	}
	return out
}

// Bytes converts int16 samples to little-endian PCM bytes.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// Level estimates the loudness of a block of normalized samples as the mean
// absolute amplitude scaled by 10 and clamped to [0, 1].
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return min(1, sum/float64(len(samples))*10)
}
