package timeseries

import "math"

const MIN_SAMPLES = 3

// Mean returns the arithmetic mean; 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation; 0 for fewer than 2 values.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

// Slope returns the ordinary least-squares slope of values against their
// sample index. Samples are treated as equally spaced regardless of their
// wall-clock timestamps; downstream day-based predictions assume one sample
// per day, so changing the time axis here would silently change their rates.
// Returns 0 for fewer than 2 points or a degenerate denominator.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var sx, sy, sxx, sxy float64
	for i, v := range values {
		x := float64(i)
		sx += x
		sy += v
		sxx += x * x
		sxy += x * v
	}

	den := float64(n)*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (float64(n)*sxy - sx*sy) / den
}
