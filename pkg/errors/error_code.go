package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidRange         ErrorCode = 102
	ErrCodeInvalidOrder         ErrorCode = 103
	ErrCodeInsufficientData     ErrorCode = 104
	ErrCodeInvalidPeriod        ErrorCode = 105
	ErrCodeInvalidTimeframe     ErrorCode = 106

	// Data/Resource errors (200-299)
	ErrCodeDataUnavailable    ErrorCode = 200
	ErrCodeInvalidBarSequence ErrorCode = 201
	ErrCodeQueryFailed        ErrorCode = 202
	ErrCodeUnknownDataSource  ErrorCode = 203

	// Algorithm errors (400-499)
	ErrCodeUnknownAlgorithm     ErrorCode = 400
	ErrCodeAlgorithmError       ErrorCode = 401
	ErrCodeAlgorithmConfigError ErrorCode = 402
	ErrCodeInvalidVersion       ErrorCode = 403

	// Trading errors (500-599). These become order rejections, never run failures.
	ErrCodeInsufficientFunds    ErrorCode = 500
	ErrCodeInsufficientPosition ErrorCode = 501
	ErrCodeSymbolNotFound       ErrorCode = 502
	ErrCodeRiskLimit            ErrorCode = 503
	ErrCodeInvalidQuantity      ErrorCode = 504

	// Backtest errors (600-699)
	ErrCodeInvariantViolation    ErrorCode = 600
	ErrCodeTimeout               ErrorCode = 601
	ErrCodeCancellationRequested ErrorCode = 602
	ErrCodeRunNotFound           ErrorCode = 603
	ErrCodeResultWriteFailed     ErrorCode = 604

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)

var codeLabels = map[ErrorCode]string{
	ErrCodeUnknown:               "internal error",
	ErrCodeInvalidParameter:      "invalid parameter",
	ErrCodeInvalidConfiguration:  "invalid configuration",
	ErrCodeInvalidRange:          "invalid range",
	ErrCodeInvalidOrder:          "invalid order",
	ErrCodeInsufficientData:      "insufficient data",
	ErrCodeInvalidPeriod:         "invalid period",
	ErrCodeInvalidTimeframe:      "invalid timeframe",
	ErrCodeDataUnavailable:       "data unavailable",
	ErrCodeInvalidBarSequence:    "invalid bar sequence",
	ErrCodeQueryFailed:           "data query failed",
	ErrCodeUnknownDataSource:     "unknown data source",
	ErrCodeUnknownAlgorithm:      "unknown algorithm",
	ErrCodeAlgorithmError:        "algorithm error",
	ErrCodeAlgorithmConfigError:  "invalid algorithm parameters",
	ErrCodeInvalidVersion:        "invalid version",
	ErrCodeInsufficientFunds:     "insufficient funds",
	ErrCodeInsufficientPosition:  "insufficient position",
	ErrCodeSymbolNotFound:        "symbol not found",
	ErrCodeRiskLimit:             "risk limit exceeded",
	ErrCodeInvalidQuantity:       "invalid quantity",
	ErrCodeInvariantViolation:    "simulator invariant violated",
	ErrCodeTimeout:               "timeout",
	ErrCodeCancellationRequested: "cancellation requested",
	ErrCodeRunNotFound:           "run not found",
	ErrCodeResultWriteFailed:     "failed to write results",
	ErrCodeMarketDataFetchFailed: "market data fetch failed",
	ErrCodeCallbackFailed:        "callback failed",
}

// Label returns the short human-readable name of the code.
func (c ErrorCode) Label() string {
	if label, ok := codeLabels[c]; ok {
		return label
	}

	return codeLabels[ErrCodeUnknown]
}
