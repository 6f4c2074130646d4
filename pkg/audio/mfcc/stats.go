package mfcc

// Stats holds the per-coefficient mean and population variance of an MFCC
// frame sequence.
type Stats struct {
	Mean     []float64
	Variance []float64
	Frames   int
}

// ComputeStats summarizes frames. Returns a zero Stats for an empty input.
func ComputeStats(frames [][]float64) Stats {
	if len(frames) == 0 {
		return Stats{}
	}
	dim := len(frames[0])
	n := float64(len(frames))
	mean := make([]float64, dim)
	for _, f := range frames {
		for i, v := range f {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= n
	}
	variance := make([]float64, dim)
	for _, f := range frames {
		for i, v := range f {
			d := v - mean[i]
			variance[i] += d * d
		}
	}
	for i := range variance {
		variance[i] /= n
	}
	return Stats{Mean: mean, Variance: variance, Frames: len(frames)}
}
