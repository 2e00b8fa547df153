package types

import (
	"time"

	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// Bar is one OHLCV sample for a symbol at a timeframe-aligned timestamp.
type Bar struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// IsValid reports whether the bar has positive prices and a consistent range.
func (b Bar) IsValid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}

	if b.High < b.Low {
		return false
	}

	return b.Volume >= 0
}

// Timeframe is the sampling interval of a bar series.
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe1h Timeframe = "1h"
	Timeframe1d Timeframe = "1d"
	Timeframe1w Timeframe = "1w"
	Timeframe1M Timeframe = "1M"
)

const (
	tradingDaysPerYear   = 252
	tradingHoursPerDay   = 6.5
	tradingMinutesPerDay = 390
)

// ParseTimeframe validates s and returns it as a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	switch tf {
	case Timeframe1m, Timeframe1h, Timeframe1d, Timeframe1w, Timeframe1M:
		return tf, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe %q", s)
	}
}

// Duration is the nominal length of one bar. Months are treated as 30 days.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	case Timeframe1w:
		return 7 * 24 * time.Hour
	case Timeframe1M:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// MaxGap is the largest timestamp jump between consecutive bars that is not
// considered missing data. Daily bars allow for weekends and holidays.
func (tf Timeframe) MaxGap() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 4 * 24 * time.Hour
	case Timeframe1w:
		return 8 * 24 * time.Hour
	case Timeframe1M:
		return 32 * 24 * time.Hour
	default:
		return 0
	}
}

// Next returns the timestamp one bar after t.
func (tf Timeframe) Next(t time.Time) time.Time {
	switch tf {
	case Timeframe1M:
		return t.AddDate(0, 1, 0)
	case Timeframe1w:
		return t.AddDate(0, 0, 7)
	case Timeframe1d:
		return t.AddDate(0, 0, 1)
	default:
		return t.Add(tf.Duration())
	}
}

// PeriodsPerYear is used to annualize returns and volatility.
func (tf Timeframe) PeriodsPerYear() float64 {
	switch tf {
	case Timeframe1m:
		return tradingDaysPerYear * tradingMinutesPerDay
	case Timeframe1h:
		return tradingDaysPerYear * tradingHoursPerDay
	case Timeframe1w:
		return 52
	case Timeframe1M:
		return 12
	default:
		return tradingDaysPerYear
	}
}
