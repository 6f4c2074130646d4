package mfcc

import "math"

// fft performs an in-place iterative radix-2 Cooley-Tukey FFT on the
// caller-owned buffers re and im, which must share a power-of-two length.
// The twiddle angle is -2π/size.
func fft(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2.0 * math.Pi / float64(size)
		wR := math.Cos(angle)
		wI := math.Sin(angle)

		for start := 0; start < n; start += size {
			tR, tI := 1.0, 0.0
			for k := 0; k < half; k++ {
				u := start + k
				v := u + half

				tmpR := tR*re[v] - tI*im[v]
				tmpI := tR*im[v] + tI*re[v]

				re[v] = re[u] - tmpR
				im[v] = im[u] - tmpI
				re[u] += tmpR
				im[u] += tmpI

				tR, tI = tR*wR-tI*wI, tR*wI+tI*wR
			}
		}
	}
}

// Magnitudes returns |X[k]| for k in 0..len(samples)/2 without touching the
// input. len(samples) must be a power of two.
func Magnitudes(samples []float64) []float64 {
	n := len(samples)
	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, samples)
	fft(re, im)
	mag := make([]float64, n/2+1)
	for k := range mag {
		mag[k] = math.Sqrt(re[k]*re[k] + im[k]*im[k])
	}
	return mag
}
