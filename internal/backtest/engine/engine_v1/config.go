package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// benchmarkTickers maps the dashboard's benchmark ids to index ETFs.
var benchmarkTickers = map[string]string{
	"sp500":   "SPY",
	"nasdaq":  "QQQ",
	"russell": "IWM",
	"dow":     "DIA",
}

// BenchmarkTicker resolves a benchmark id. Unknown ids are used as tickers.
func BenchmarkTicker(id string) string {
	if ticker, ok := benchmarkTickers[strings.ToLower(id)]; ok {
		return ticker
	}

	return strings.ToUpper(id)
}

// RunRequest is the body of POST /backtests and the content of a CLI run file.
type RunRequest struct {
	Symbol         string  `yaml:"symbol" json:"symbol" validate:"required" jsonschema:"title=Symbol,description=Ticker to backtest"`
	StartDate      string  `yaml:"start_date" json:"startDate" validate:"required" jsonschema:"title=Start Date,description=Inclusive start as YYYY-MM-DD or RFC 3339"`
	EndDate        string  `yaml:"end_date" json:"endDate" validate:"required" jsonschema:"title=End Date,description=Exclusive end as YYYY-MM-DD or RFC 3339"`
	InitialCapital float64 `yaml:"initial_capital" json:"initialCapital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting cash in USD,exclusiveMinimum=0"`
	DataSource     string  `yaml:"data_source" json:"dataSource" jsonschema:"title=Data Source,description=Name of a configured data source"`
	// Benchmark accepts sp500, nasdaq, russell, dow or a ticker.
	Benchmark       string                                 `yaml:"benchmark" json:"benchmark" jsonschema:"title=Benchmark"`
	Timeframe       types.Timeframe                        `yaml:"timeframe" json:"timeframe" jsonschema:"title=Timeframe,enum=1m,enum=1h,enum=1d,enum=1w,enum=1M"`
	SlippageModel   optional.Option[types.SlippageModel]   `yaml:"slippage_model" json:"slippageModel" jsonschema:"title=Slippage Model"`
	CommissionModel optional.Option[types.CommissionModel] `yaml:"commission_model" json:"commissionModel" jsonschema:"title=Commission Model"`
	AlgorithmID     string                                 `yaml:"algorithm_id" json:"algorithmId" validate:"required" jsonschema:"title=Algorithm,description=Registered algorithm id with an optional @version constraint"`
	AlgorithmParams map[string]any                         `yaml:"algorithm_params" json:"algorithmParams,omitempty" jsonschema:"title=Algorithm Parameters"`
	RiskFreeRate    float64                                `yaml:"risk_free_rate" json:"riskFreeRate" jsonschema:"title=Risk Free Rate,description=Annual rate used by Sharpe and Sortino"`
	AllowShort      bool                                   `yaml:"allow_short" json:"allowShort" jsonschema:"title=Allow Short Selling"`
	// MaxPositionQuantity caps the absolute position size. 0 means no cap.
	MaxPositionQuantity float64         `yaml:"max_position_quantity" json:"maxPositionQuantity" validate:"gte=0" jsonschema:"title=Max Position Quantity,minimum=0"`
	GapPolicy           types.GapPolicy `yaml:"gap_policy" json:"gapPolicy" jsonschema:"title=Gap Policy,enum=skip,enum=forward_fill,enum=error"`
	Lookback            int             `yaml:"lookback" json:"lookback" validate:"gte=0" jsonschema:"title=Lookback,description=Bars of history visible to the algorithm,minimum=0"`
	TimeoutSeconds      int             `yaml:"timeout_seconds" json:"timeoutSeconds" validate:"gte=0" jsonschema:"title=Timeout,description=Wall-clock budget in seconds,minimum=0"`
}

// UnmarshalYAML implements custom unmarshaling so that missing cost models stay None.
func (r *RunRequest) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Request struct {
		Symbol              string                 `yaml:"symbol"`
		StartDate           string                 `yaml:"start_date"`
		EndDate             string                 `yaml:"end_date"`
		InitialCapital      float64                `yaml:"initial_capital"`
		DataSource          string                 `yaml:"data_source"`
		Benchmark           string                 `yaml:"benchmark"`
		Timeframe           types.Timeframe        `yaml:"timeframe"`
		SlippageModel       *types.SlippageModel   `yaml:"slippage_model"`
		CommissionModel     *types.CommissionModel `yaml:"commission_model"`
		AlgorithmID         string                 `yaml:"algorithm_id"`
		AlgorithmParams     map[string]any         `yaml:"algorithm_params"`
		RiskFreeRate        float64                `yaml:"risk_free_rate"`
		AllowShort          bool                   `yaml:"allow_short"`
		MaxPositionQuantity float64                `yaml:"max_position_quantity"`
		GapPolicy           types.GapPolicy        `yaml:"gap_policy"`
		Lookback            int                    `yaml:"lookback"`
		TimeoutSeconds      int                    `yaml:"timeout_seconds"`
	}

	var req Request
	if err := unmarshal(&req); err != nil {
		return err
	}

	*r = RunRequest{
		Symbol:              req.Symbol,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		InitialCapital:      req.InitialCapital,
		DataSource:          req.DataSource,
		Benchmark:           req.Benchmark,
		Timeframe:           req.Timeframe,
		SlippageModel:       optional.None[types.SlippageModel](),
		CommissionModel:     optional.None[types.CommissionModel](),
		AlgorithmID:         req.AlgorithmID,
		AlgorithmParams:     req.AlgorithmParams,
		RiskFreeRate:        req.RiskFreeRate,
		AllowShort:          req.AllowShort,
		MaxPositionQuantity: req.MaxPositionQuantity,
		GapPolicy:           req.GapPolicy,
		Lookback:            req.Lookback,
		TimeoutSeconds:      req.TimeoutSeconds,
	}

	if req.SlippageModel != nil {
		r.SlippageModel = optional.Some(*req.SlippageModel)
	}

	if req.CommissionModel != nil {
		r.CommissionModel = optional.Some(*req.CommissionModel)
	}

	return nil
}

// Defaults fill what a request leaves out. Cost models have no built-in
// default: a request without one is rejected unless the server config sets it.
type Defaults struct {
	DataSource string
	Timeframe  types.Timeframe
	GapPolicy  types.GapPolicy
	Lookback   int
	Timeout    time.Duration
	Slippage   optional.Option[types.SlippageModel]
	Commission optional.Option[types.CommissionModel]
}

// parseDate accepts a calendar date or an RFC 3339 timestamp and returns it in UTC.
func parseDate(field string, value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "%s %q is not a date", field, value)
	}

	return t.UTC(), nil
}

// ToBacktestConfig validates the request and resolves it against defaults.
func (r RunRequest) ToBacktestConfig(defaults Defaults) (types.BacktestConfig, error) {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return types.BacktestConfig{}, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid backtest request", err)
	}

	start, err := parseDate("startDate", r.StartDate)
	if err != nil {
		return types.BacktestConfig{}, err
	}

	end, err := parseDate("endDate", r.EndDate)
	if err != nil {
		return types.BacktestConfig{}, err
	}

	slippageModel, ok := firstSome(r.SlippageModel, defaults.Slippage)
	if !ok {
		return types.BacktestConfig{}, errors.New(errors.ErrCodeInvalidConfiguration, "slippageModel is required")
	}

	commissionModel, ok := firstSome(r.CommissionModel, defaults.Commission)
	if !ok {
		return types.BacktestConfig{}, errors.New(errors.ErrCodeInvalidConfiguration, "commissionModel is required")
	}

	benchmark := ""
	if r.Benchmark != "" {
		benchmark = BenchmarkTicker(r.Benchmark)
	}

	config := types.BacktestConfig{
		Symbol:          strings.ToUpper(r.Symbol),
		Start:           start,
		End:             end,
		Timeframe:       orDefault(r.Timeframe, defaults.Timeframe, types.Timeframe1d),
		InitialCapital:  r.InitialCapital,
		DataSource:      orDefault(r.DataSource, defaults.DataSource, ""),
		Benchmark:       benchmark,
		Slippage:        slippageModel,
		Commission:      commissionModel,
		AlgorithmID:     r.AlgorithmID,
		AlgorithmParams: r.AlgorithmParams,
		RiskFreeRate:    r.RiskFreeRate,
		Risk: types.RiskLimits{
			AllowShort:          r.AllowShort,
			MaxPositionQuantity: r.MaxPositionQuantity,
		},
		GapPolicy: orDefault(r.GapPolicy, defaults.GapPolicy, types.GapPolicySkip),
		Lookback:  orDefault(r.Lookback, defaults.Lookback, algorithm.DefaultLookback),
		Timeout:   defaults.Timeout,
	}

	if r.TimeoutSeconds > 0 {
		config.Timeout = time.Duration(r.TimeoutSeconds) * time.Second
	}

	if err := config.Validate(); err != nil {
		return types.BacktestConfig{}, err
	}

	return config, nil
}

func firstSome[T any](options ...optional.Option[T]) (T, bool) {
	for _, o := range options {
		if o.IsSome() {
			return o.Unwrap(), true
		}
	}

	var zero T

	return zero, false
}

func orDefault[T comparable](value T, configured T, fallback T) T {
	var zero T

	if value != zero {
		return value
	}

	if configured != zero {
		return configured
	}

	return fallback
}

// GenerateSchema generates a JSON schema for RunRequest.
func (r *RunRequest) GenerateSchema() (*jsonschema.Schema, error) {
	nested := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}

	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeOf(optional.Option[types.SlippageModel]{}):
				return nested.Reflect(&types.SlippageModel{})
			case reflect.TypeOf(optional.Option[types.CommissionModel]{}):
				return nested.Reflect(&types.CommissionModel{})
			}

			return nil
		},
	}

	schema := reflector.Reflect(r)
	schema.Title = "backtest-run-request"
	schema.Description = "Request body of POST /backtests"
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Required = []string{"symbol", "startDate", "endDate", "initialCapital", "algorithmId"}

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for RunRequest.
func (r *RunRequest) GenerateSchemaJSON() (string, error) {
	schema, err := r.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
