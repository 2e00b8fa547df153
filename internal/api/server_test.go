package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-fund/internal/backtest/service"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/internal/version"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ServerTestSuite struct {
	suite.Suite
	service *service.Service
	server  *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

var barsStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// risingBars returns n daily bars rising by one dollar a day from 100.
func risingBars(symbol string, n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   barsStart.AddDate(0, 0, i),
			Open:   price,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price,
			Volume: 1_000_000,
		}
	}

	return bars
}

func (suite *ServerTestSuite) SetupTest() {
	log := logger.NewNopLogger()

	source := datasource.NewInMemoryDataSource("memory")
	source.Load(risingBars("AAPL", 60))
	source.Load(risingBars("SPY", 60))

	dataSources, err := datasource.NewRegistry(source)
	suite.Require().NoError(err)

	algorithms := algorithm.DefaultRegistry()
	eng := v1.NewBacktestEngineV1(dataSources, algorithms, log)

	suite.service = service.NewService(eng, nil, service.Config{MaxConcurrentRuns: 2}, log)

	defaults := v1.Defaults{
		DataSource: "memory",
		Timeframe:  types.Timeframe1d,
		GapPolicy:  types.GapPolicySkip,
		Lookback:   50,
		Timeout:    0,
		Slippage:   optional.None[types.SlippageModel](),
		Commission: optional.None[types.CommissionModel](),
	}

	suite.server = httptest.NewServer(NewServer(suite.service, eng, algorithms, dataSources, defaults, log).Router())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	suite.Require().NoError(suite.service.Shutdown(ctx))
}

func validRequest() map[string]any {
	return map[string]any{
		"symbol":          "aapl",
		"startDate":       "2024-01-01",
		"endDate":         "2024-02-01",
		"initialCapital":  10000,
		"benchmark":       "sp500",
		"algorithmId":     "buy-and-hold",
		"slippageModel":   map[string]any{"type": "none"},
		"commissionModel": map[string]any{"type": "fixed", "perShare": 0.01, "minimum": 1},
	}
}

func (suite *ServerTestSuite) do(method string, path string, body any) *http.Response {
	var reader *bytes.Reader

	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		suite.Require().NoError(err)

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	suite.Require().NoError(err)

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { resp.Body.Close() })

	return resp
}

func (suite *ServerTestSuite) decode(resp *http.Response, out any) {
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (suite *ServerTestSuite) submit(body any) string {
	resp := suite.do(http.MethodPost, "/backtests", body)
	suite.Require().Equal(http.StatusAccepted, resp.StatusCode)

	var submitted submitResponse
	suite.decode(resp, &submitted)
	suite.Equal(types.RunStateQueued, submitted.Status)
	suite.Require().NotEmpty(submitted.RunID)

	return submitted.RunID
}

func (suite *ServerTestSuite) waitTerminal(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run, err := suite.service.Wait(ctx, runID)
	suite.Require().NoError(err)
	suite.Require().True(run.State.IsTerminal())
}

func (suite *ServerTestSuite) TestHealth() {
	resp := suite.do(http.MethodGet, "/healthz", nil)
	suite.Equal(http.StatusOK, resp.StatusCode)

	var body map[string]string
	suite.decode(resp, &body)
	suite.Equal("ok", body["status"])
	suite.Equal(version.GetVersion(), body["version"])
}

func (suite *ServerTestSuite) TestListAlgorithms() {
	resp := suite.do(http.MethodGet, "/algorithms", nil)
	suite.Equal(http.StatusOK, resp.StatusCode)

	var list []algorithm.Metadata
	suite.decode(resp, &list)

	ids := make([]string, 0, len(list))
	for _, metadata := range list {
		ids = append(ids, metadata.ID)
	}

	suite.Contains(ids, algorithm.BuyAndHoldID)
	suite.Contains(ids, algorithm.MomentumID)
	suite.Contains(ids, algorithm.FlatID)
}

func (suite *ServerTestSuite) TestSchema() {
	resp := suite.do(http.MethodGet, "/backtests/schema", nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal("application/schema+json", resp.Header.Get("Content-Type"))

	var schema map[string]any
	suite.decode(resp, &schema)
	suite.Contains(schema["required"], "algorithmId")
}

func (suite *ServerTestSuite) TestSubmitAndGetCompletedRun() {
	runID := suite.submit(validRequest())
	suite.waitTerminal(runID)

	resp := suite.do(http.MethodGet, "/backtests/"+runID, nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var run types.BacktestRun
	suite.decode(resp, &run)

	suite.Equal(runID, run.ID)
	suite.Equal(types.RunStateCompleted, run.State)
	suite.Equal("AAPL", run.Config.Symbol)
	suite.Equal("SPY", run.Config.Benchmark)
	suite.Equal(types.Progress{BarsProcessed: 31, TotalBars: 31}, run.Progress)
	suite.Require().NotNil(run.Result)
	suite.InDelta(10000, run.Result.Report.InitialEquity, 1e-9)
	suite.Greater(run.Result.Report.FinalEquity, 10000.0)
	suite.True(run.Result.Report.BenchmarkReturn.IsSome())
	suite.Empty(run.Reason)
}

func (suite *ServerTestSuite) TestEquity() {
	runID := suite.submit(validRequest())
	suite.waitTerminal(runID)

	resp := suite.do(http.MethodGet, "/backtests/"+runID+"/equity", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var equity equityResponse
	suite.decode(resp, &equity)
	suite.Equal(runID, equity.RunID)
	suite.Require().Len(equity.Equity, 31)
	suite.InDelta(10000, equity.Equity[0].TotalEquity, 1e-9)
}

func (suite *ServerTestSuite) TestListRuns() {
	first := suite.submit(validRequest())
	second := suite.submit(validRequest())
	suite.waitTerminal(first)
	suite.waitTerminal(second)

	resp := suite.do(http.MethodGet, "/backtests", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var runs []runSummary
	suite.decode(resp, &runs)
	suite.Require().Len(runs, 2)
	suite.Equal(first, runs[0].RunID)
	suite.Equal(second, runs[1].RunID)
	suite.Equal(algorithm.BuyAndHoldID, runs[0].AlgorithmID)
}

func (suite *ServerTestSuite) TestCancelCompletedRunIsNoop() {
	runID := suite.submit(validRequest())
	suite.waitTerminal(runID)

	resp := suite.do(http.MethodPost, "/backtests/"+runID+"/cancel", nil)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var run types.BacktestRun
	suite.decode(resp, &run)
	suite.Equal(types.RunStateCompleted, run.State)
}

func (suite *ServerTestSuite) TestUnknownRun() {
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/backtests/missing"},
		{http.MethodGet, "/backtests/missing/equity"},
		{http.MethodPost, "/backtests/missing/cancel"},
		{http.MethodGet, "/backtests/missing/stream"},
	}

	for _, p := range paths {
		suite.Run(p.method+" "+p.path, func() {
			resp := suite.do(p.method, p.path, nil)
			suite.Equal(http.StatusNotFound, resp.StatusCode)

			var body errorResponse
			suite.decode(resp, &body)
			suite.Equal(errors.ErrCodeRunNotFound, body.Code)
			suite.True(strings.HasPrefix(body.Error, "run not found"))
		})
	}
}

func (suite *ServerTestSuite) TestSubmitRejectsBadRequests() {
	with := func(key string, value any) map[string]any {
		request := validRequest()
		if value == nil {
			delete(request, key)
		} else {
			request[key] = value
		}

		return request
	}

	tests := []struct {
		name string
		body any
		code errors.ErrorCode
	}{
		{name: "malformed json", body: "{", code: errors.ErrCodeInvalidParameter},
		{name: "missing symbol", body: with("symbol", nil), code: errors.ErrCodeInvalidParameter},
		{name: "non positive capital", body: with("initialCapital", 0), code: errors.ErrCodeInvalidParameter},
		{name: "bad date", body: with("startDate", "01/02/2024"), code: errors.ErrCodeInvalidParameter},
		{name: "end before start", body: with("endDate", "2023-12-01"), code: errors.ErrCodeInvalidRange},
		{name: "unknown algorithm", body: with("algorithmId", "neural-net"), code: errors.ErrCodeUnknownAlgorithm},
		{name: "unknown data source", body: with("dataSource", "bloomberg"), code: errors.ErrCodeUnknownDataSource},
		{name: "missing slippage model", body: with("slippageModel", nil), code: errors.ErrCodeInvalidConfiguration},
		{name: "missing commission model", body: with("commissionModel", nil), code: errors.ErrCodeInvalidConfiguration},
		{
			name: "bad algorithm params",
			body: func() map[string]any {
				request := with("algorithmId", algorithm.MomentumID)
				request["algorithmParams"] = map[string]any{"fast_period": 30, "slow_period": 10}

				return request
			}(),
			code: errors.ErrCodeAlgorithmConfigError,
		},
		{
			name: "window longer than lookback",
			body: func() map[string]any {
				request := with("algorithmId", algorithm.MomentumID)
				request["algorithmParams"] = map[string]any{"fast_period": 5, "slow_period": 30}
				request["lookback"] = 20

				return request
			}(),
			code: errors.ErrCodeInvalidParameter,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			resp := suite.do(http.MethodPost, "/backtests", tt.body)
			suite.Equal(http.StatusBadRequest, resp.StatusCode)

			var body errorResponse
			suite.decode(resp, &body)
			suite.Equal(tt.code, body.Code)
			suite.NotEmpty(body.Error)
		})
	}

	suite.Empty(suite.service.List())
}

func (suite *ServerTestSuite) TestStreamEndsWithTerminalEvent() {
	runID := suite.submit(validRequest())

	url := "ws" + strings.TrimPrefix(suite.server.URL, "http") + "/backtests/" + runID + "/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	defer conn.Close()

	var last ProgressEvent

	events := 0

	for {
		var event ProgressEvent
		if err := conn.ReadJSON(&event); err != nil {
			suite.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

			break
		}

		suite.Equal(runID, event.RunID)

		last = event
		events++
	}

	suite.GreaterOrEqual(events, 1)
	suite.Equal(types.RunStateCompleted, last.Status)
	suite.Equal(31, last.Progress.BarsProcessed)
}
