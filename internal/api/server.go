// Package api exposes the backtest service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
)

// cancelWaitTimeout bounds how long a cancel request waits for the in-flight bar.
const cancelWaitTimeout = 10 * time.Second

// RunService is the part of the backtest service used by the HTTP handlers.
type RunService interface {
	Submit(config types.BacktestConfig) (types.BacktestRun, error)
	Get(runID string) (types.BacktestRun, error)
	List() []types.BacktestRun
	Cancel(ctx context.Context, runID string) (types.BacktestRun, error)
	Subscribe(runID string) (<-chan types.BacktestRun, func(), error)
}

type Server struct {
	runs        RunService
	engine      engine.Engine
	algorithms  *algorithm.Registry
	dataSources *datasource.Registry
	defaults    v1.Defaults
	log         *logger.Logger
	upgrader    websocket.Upgrader
}

func NewServer(
	runs RunService,
	eng engine.Engine,
	algorithms *algorithm.Registry,
	dataSources *datasource.Registry,
	defaults v1.Defaults,
	log *logger.Logger,
) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Server{
		runs:        runs,
		engine:      eng,
		algorithms:  algorithms,
		dataSources: dataSources,
		defaults:    defaults,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Router returns the HTTP handler serving every endpoint.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/algorithms", s.handleListAlgorithms).Methods(http.MethodGet)

	router.HandleFunc("/backtests", s.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/backtests", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/backtests/schema", s.handleSchema).Methods(http.MethodGet)
	router.HandleFunc("/backtests/{runId}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/backtests/{runId}/equity", s.handleEquity).Methods(http.MethodGet)
	router.HandleFunc("/backtests/{runId}/cancel", s.handleCancel).Methods(http.MethodPost)
	router.HandleFunc("/backtests/{runId}/stream", s.handleStream).Methods(http.MethodGet)

	return router
}
