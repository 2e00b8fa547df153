package indicator

import "math"

// StdDev returns the population standard deviation of the last period values.
func StdDev(values []float64, period int) (float64, error) {
	mean, err := SMA(values, period)
	if err != nil {
		return 0, err
	}

	variance := 0.0
	for _, v := range values[len(values)-period:] {
		variance += (v - mean) * (v - mean)
	}

	return math.Sqrt(variance / float64(period)), nil
}
