package indicator

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if err := checkWindow("SMA", values, period, period); err != nil {
		return 0, err
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}

	return sum / float64(period), nil
}

// SMASeries returns the SMA at every index where a full window exists.
// The result has len(values)-period+1 entries.
func SMASeries(values []float64, period int) ([]float64, error) {
	if err := checkWindow("SMA", values, period, period); err != nil {
		return nil, err
	}

	result := make([]float64, 0, len(values)-period+1)
	sum := 0.0

	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}

		if i >= period-1 {
			result = append(result, sum/float64(period))
		}
	}

	return result, nil
}
