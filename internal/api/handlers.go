package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/internal/version"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string           `json:"error"`
	Code  errors.ErrorCode `json:"code"`
}

type submitResponse struct {
	RunID  string         `json:"runId"`
	Status types.RunState `json:"status"`
}

// runSummary is the list view of a run.
type runSummary struct {
	RunID       string         `json:"runId"`
	Status      types.RunState `json:"status"`
	Symbol      string         `json:"symbol"`
	AlgorithmID string         `json:"algorithmId"`
	Progress    types.Progress `json:"progress"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
}

type equityResponse struct {
	RunID  string              `json:"runId"`
	Equity []types.EquityPoint `json:"equity"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error code to the HTTP status returned to clients.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidParameter,
		errors.ErrCodeInvalidConfiguration,
		errors.ErrCodeInvalidRange,
		errors.ErrCodeInvalidTimeframe,
		errors.ErrCodeUnknownAlgorithm,
		errors.ErrCodeUnknownDataSource,
		errors.ErrCodeAlgorithmConfigError,
		errors.ErrCodeInvalidVersion:
		return http.StatusBadRequest
	case errors.ErrCodeRunNotFound:
		return http.StatusNotFound
	case errors.ErrCodeCancellationRequested:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)

	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: errors.Reason(err), Code: code})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.GetVersion()})
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.algorithms.List())
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	schema, err := s.engine.GetConfigSchema()
	if err != nil {
		s.writeError(w, err)

		return
	}

	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(schema))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var request v1.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "request body is not valid JSON", err))

		return
	}

	config, err := request.ToBacktestConfig(s.defaults)
	if err != nil {
		s.writeError(w, err)

		return
	}

	// reject references the run would only discover after being queued
	if _, err := s.dataSources.Get(config.DataSource); err != nil {
		s.writeError(w, err)

		return
	}

	algo, err := s.algorithms.NewForRun(config.AlgorithmID, config.AlgorithmParams, config.Lookback)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := algorithm.Release(algo); err != nil {
		s.log.Warn("Failed to release algorithm", zap.String("algorithm", config.AlgorithmID), zap.Error(err))
	}

	run, err := s.runs.Submit(config)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{RunID: run.ID, Status: run.State})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	runs := s.runs.List()

	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary{
			RunID:       run.ID,
			Status:      run.State,
			Symbol:      run.Config.Symbol,
			AlgorithmID: run.Config.AlgorithmID,
			Progress:    run.Progress,
			Reason:      run.Reason,
			CreatedAt:   run.CreatedAt,
			FinishedAt:  run.FinishedAt,
		})
	}

	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(mux.Vars(r)["runId"])
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(mux.Vars(r)["runId"])
	if err != nil {
		s.writeError(w, err)

		return
	}

	if run.Result == nil {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "run " + string(run.State) + " has no equity curve",
			Code:  errors.ErrCodeDataUnavailable,
		})

		return
	}

	writeJSON(w, http.StatusOK, equityResponse{RunID: run.ID, Equity: run.Result.Equity})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), cancelWaitTimeout)
	defer cancel()

	run, err := s.runs.Cancel(ctx, mux.Vars(r)["runId"])
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, run)
}
