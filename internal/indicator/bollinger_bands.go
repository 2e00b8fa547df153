package indicator

// BollingerBands are k standard deviations around the simple moving average.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
	StdDev float64
}

// Bollinger computes the bands over the last period values.
func Bollinger(values []float64, period int, k float64) (BollingerBands, error) {
	middle, err := SMA(values, period)
	if err != nil {
		return BollingerBands{}, err
	}

	sd, err := StdDev(values, period)
	if err != nil {
		return BollingerBands{}, err
	}

	return BollingerBands{
		Upper:  middle + k*sd,
		Middle: middle,
		Lower:  middle - k*sd,
		StdDev: sd,
	}, nil
}

// ZScore is the distance of value from the middle band in standard deviations.
// A band with zero width gives 0.
func (b BollingerBands) ZScore(value float64) float64 {
	if b.StdDev == 0 {
		return 0
	}

	return (value - b.Middle) / b.StdDev
}
