package types

import (
	"time"
)

// RunState is the lifecycle state of a backtest run.
type RunState string

const (
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// IsTerminal reports whether the run can no longer change state.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCancelled
}

// Progress is the number of bars processed out of the total.
type Progress struct {
	BarsProcessed int `json:"barsProcessed"`
	TotalBars     int `json:"totalBars"`
}

// RunResult is everything a finished (or cancelled) run produced.
type RunResult struct {
	Report StatisticsReport `json:"report"`
	Equity []EquityPoint    `json:"-"`
	Trades []Trade          `json:"trades"`
	Orders []OrderLogEntry  `json:"-"`
}

// BacktestRun is the orchestrator's record of one run.
type BacktestRun struct {
	ID       string         `json:"runId"`
	Config   BacktestConfig `json:"config"`
	State    RunState       `json:"status"`
	Progress Progress       `json:"progress"`
	// Reason is the human readable failure or cancellation reason.
	Reason string `json:"reason,omitempty"`
	// Err is the preserved failure cause.
	Err error `json:"-"`
	// LastBarIndex is the index of the last processed bar of a cancelled run, -1 if none.
	LastBarIndex int        `json:"lastBarIndex"`
	Result       *RunResult `json:"result,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}
