package mfcc

import "math"

// hammingWindow generates a Hamming window of the given length.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts frequency in Hz to mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale frequency back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank builds numFilters triangular filters spanning 0 Hz to
// Nyquist. Returns [numFilters][fftSize/2+1] weights.
func melFilterBank(numFilters, fftSize, sampleRate int) [][]float64 {
	halfFFT := fftSize/2 + 1
	lowMel := hzToMel(0)
	highMel := hzToMel(float64(sampleRate) / 2)

	step := (highMel - lowMel) / float64(numFilters+1)
	bins := make([]int, numFilters+2)
	for i := range bins {
		hz := melToHz(lowMel + float64(i)*step)
		bin := int(math.Floor(hz * float64(fftSize) / float64(sampleRate)))
		bins[i] = min(bin, halfFFT-1)
	}

	bank := make([][]float64, numFilters)
	for m := 0; m < numFilters; m++ {
		filter := make([]float64, halfFFT)
		left, center, right := bins[m], bins[m+1], bins[m+2]

		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right; k++ {
			if right == center {
				filter[k] = 1
				continue
			}
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m] = filter
	}
	return bank
}

// dctMatrix returns the type-II DCT basis [numCoeffs][n], scaled by sqrt(2/n).
func dctMatrix(numCoeffs, n int) [][]float64 {
	scale := math.Sqrt(2.0 / float64(n))
	basis := make([][]float64, numCoeffs)
	for k := range basis {
		row := make([]float64, n)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/float64(n))
		}
		basis[k] = row
	}
	return basis
}
