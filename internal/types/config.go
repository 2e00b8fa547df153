package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

type SlippageModelType string

type CommissionModelType string

type GapPolicy string

const (
	SlippageModelFixed  SlippageModelType = "fixed"
	SlippageModelVolume SlippageModelType = "volume"
	SlippageModelNone   SlippageModelType = "none"
)

const (
	CommissionModelFixed      CommissionModelType = "fixed"
	CommissionModelPercentage CommissionModelType = "percentage"
	CommissionModelNone       CommissionModelType = "none"
)

const (
	// GapPolicySkip drops invalid bars and ignores missing ones.
	GapPolicySkip GapPolicy = "skip"
	// GapPolicyForwardFill repeats the previous close for invalid or missing bars.
	GapPolicyForwardFill GapPolicy = "forward_fill"
	// GapPolicyError fails the fetch on the first invalid or missing bar.
	GapPolicyError GapPolicy = "error"
)

// SlippageModel describes how far fills move away from the reference price.
type SlippageModel struct {
	Type SlippageModelType `yaml:"type" json:"type" mapstructure:"type" validate:"required,oneof=fixed volume none"`
	// Rate is a fraction of price for fixed slippage (0.001 = 0.1%) and the
	// impact coefficient for volume slippage.
	Rate float64 `yaml:"rate" json:"rate,omitempty" mapstructure:"rate" validate:"gte=0"`
	// MaxRate caps volume slippage as a fraction of price. 0 means uncapped.
	MaxRate float64 `yaml:"max_rate" json:"maxRate,omitempty" mapstructure:"max_rate" validate:"gte=0"`
}

// CommissionModel describes the broker fee charged per fill.
type CommissionModel struct {
	Type CommissionModelType `yaml:"type" json:"type" mapstructure:"type" validate:"required,oneof=fixed percentage none"`
	// PerShare is the fee per share for the fixed model.
	PerShare float64 `yaml:"per_share" json:"perShare,omitempty" mapstructure:"per_share" validate:"gte=0"`
	// Minimum is the minimum fee per order for the fixed model.
	Minimum float64 `yaml:"minimum" json:"minimum,omitempty" mapstructure:"minimum" validate:"gte=0"`
	// Rate is a fraction of notional for the percentage model.
	Rate float64 `yaml:"rate" json:"rate,omitempty" mapstructure:"rate" validate:"gte=0"`
}

// RiskLimits are the run-level constraints exposed to algorithms and
// enforced by the simulator.
type RiskLimits struct {
	AllowShort bool `yaml:"allow_short" json:"allowShort"`
	// MaxPositionQuantity caps the absolute position size per symbol. 0 means no cap.
	MaxPositionQuantity float64 `yaml:"max_position_quantity" json:"maxPositionQuantity" validate:"gte=0"`
}

// BacktestConfig is a fully resolved backtest request.
type BacktestConfig struct {
	Symbol         string    `yaml:"symbol" json:"symbol" validate:"required"`
	Start          time.Time `yaml:"start" json:"start" validate:"required"`
	End            time.Time `yaml:"end" json:"end" validate:"required"`
	Timeframe      Timeframe `yaml:"timeframe" json:"timeframe" validate:"required"`
	InitialCapital float64   `yaml:"initial_capital" json:"initialCapital" validate:"gt=0"`
	DataSource     string    `yaml:"data_source" json:"dataSource" validate:"required"`
	// Benchmark is a ticker, or empty for no benchmark.
	Benchmark       string          `yaml:"benchmark" json:"benchmark"`
	Slippage        SlippageModel   `yaml:"slippage" json:"slippageModel"`
	Commission      CommissionModel `yaml:"commission" json:"commissionModel"`
	AlgorithmID     string          `yaml:"algorithm_id" json:"algorithmId" validate:"required"`
	AlgorithmParams map[string]any  `yaml:"algorithm_params" json:"algorithmParams,omitempty"`
	RiskFreeRate    float64         `yaml:"risk_free_rate" json:"riskFreeRate"`
	Risk            RiskLimits      `yaml:"risk" json:"risk"`
	GapPolicy       GapPolicy       `yaml:"gap_policy" json:"gapPolicy" validate:"required,oneof=skip forward_fill error"`
	// Lookback is the number of bars kept in the algorithm's history window.
	Lookback int `yaml:"lookback" json:"lookback" validate:"gt=0"`
	// Timeout is the wall-clock budget of the run. 0 means no limit.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// Validate checks the config and returns a coded error describing the first problem.
func (c *BacktestConfig) Validate() error {
	if !c.Start.IsZero() && !c.End.IsZero() && !c.Start.Before(c.End) {
		return errors.Newf(errors.ErrCodeInvalidRange, "start %s must be before end %s",
			c.Start.Format(time.DateOnly), c.End.Format(time.DateOnly))
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest configuration", err)
	}

	if _, err := ParseTimeframe(string(c.Timeframe)); err != nil {
		return err
	}

	if err := validate.Struct(c.Slippage); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid slippage model", err)
	}

	if err := validate.Struct(c.Commission); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid commission model", err)
	}

	return nil
}
