package wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/algorithm/wasm/wasmtest"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/stretchr/testify/suite"
)

const testInfo = `{"name":"Constant","description":"Answers every bar the same way","version":"1.2.0","warmupBars":3}`

const testResponse = `{"orders":[` +
	`{"symbol":"aapl","side":"buy","quantity":2,"reason":"wasm_signal"},` +
	`{"symbol":"AAPL","side":"SELL","type":"limit","quantity":1,"limitPrice":101.5}]}`

type WasmTestSuite struct {
	suite.Suite
	ctx     context.Context
	runtime *Runtime
}

func TestWasmSuite(t *testing.T) {
	suite.Run(t, new(WasmTestSuite))
}

func (suite *WasmTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.runtime = NewRuntime(suite.ctx, time.Second, nil)
}

func (suite *WasmTestSuite) TearDownTest() {
	suite.Require().NoError(suite.runtime.Close(suite.ctx))
}

func validModule() wasmtest.Module {
	return wasmtest.Module{
		APIVersion: APIVersion,
		Info:       testInfo,
		Response:   testResponse,
	}
}

func (suite *WasmTestSuite) newAlgorithm(m wasmtest.Module) algorithm.Algorithm {
	module, err := suite.runtime.LoadBytes(suite.ctx, "constant", m.Bytes())
	suite.Require().NoError(err)

	algo, err := module.New(map[string]any{"size": 2})
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { _ = algorithm.Release(algo) })

	return algo
}

func onBar(algo algorithm.Algorithm) ([]types.OrderRequest, error) {
	bar := types.Bar{
		Symbol: "AAPL",
		Time:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:   100,
		High:   102,
		Low:    99,
		Close:  101,
		Volume: 1000,
	}

	ctx := algorithm.NewContext(types.RiskLimits{}, 20)
	ctx.Advance(bar, 0, types.PortfolioState{
		Cash:      1000,
		Positions: map[string]types.Position{"AAPL": {Symbol: "AAPL", Quantity: 3}},
	})

	return algo.OnBar(ctx, bar)
}

func (suite *WasmTestSuite) TestLoadReadsMetadata() {
	module, err := suite.runtime.LoadBytes(suite.ctx, "constant", validModule().Bytes())
	suite.Require().NoError(err)

	suite.Equal(algorithm.Metadata{
		ID:          "constant",
		Name:        "Constant",
		Type:        algorithm.AlgorithmTypeCustom,
		Description: "Answers every bar the same way",
		Version:     "1.2.0",
	}, module.Metadata())
}

func (suite *WasmTestSuite) TestNameDefaultsToID() {
	m := validModule()
	m.Info = `{"version":"0.1.0"}`

	module, err := suite.runtime.LoadBytes(suite.ctx, "unnamed", m.Bytes())
	suite.Require().NoError(err)
	suite.Equal("unnamed", module.Metadata().Name)
}

func (suite *WasmTestSuite) TestLoadRejectsInvalidModules() {
	tests := []struct {
		name   string
		module wasmtest.Module
		data   []byte
	}{
		{name: "not wasm", data: []byte("not a module")},
		{name: "api version mismatch", module: wasmtest.Module{APIVersion: 2, Info: testInfo}},
		{name: "invalid info", module: wasmtest.Module{APIVersion: APIVersion, Info: "{"}},
		{name: "negative warmup", module: wasmtest.Module{APIVersion: APIVersion, Info: `{"warmupBars":-1}`}},
		{name: "no memory", module: wasmtest.Module{APIVersion: APIVersion, Info: testInfo, Omit: []string{"memory"}}},
		{name: "no malloc", module: wasmtest.Module{APIVersion: APIVersion, Info: testInfo, Omit: []string{"malloc"}}},
		{name: "no free", module: wasmtest.Module{APIVersion: APIVersion, Info: testInfo, Omit: []string{"free"}}},
		{name: "no on_bar", module: wasmtest.Module{APIVersion: APIVersion, Info: testInfo, Omit: []string{"argo_algorithm_on_bar"}}},
		{name: "no init", module: wasmtest.Module{APIVersion: APIVersion, Info: testInfo, Omit: []string{"argo_algorithm_init"}}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			data := tc.data
			if data == nil {
				data = tc.module.Bytes()
			}

			_, err := suite.runtime.LoadBytes(suite.ctx, "broken", data)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration), "got %v", err)
		})
	}
}

func (suite *WasmTestSuite) TestOnBarReturnsOrders() {
	algo := suite.newAlgorithm(validModule())

	orders, err := onBar(algo)
	suite.Require().NoError(err)
	suite.Require().Len(orders, 2)

	suite.Equal("AAPL", orders[0].Symbol)
	suite.Equal(types.PurchaseTypeBuy, orders[0].Side)
	suite.Equal(types.OrderTypeMarket, orders[0].Type)
	suite.Equal(2.0, orders[0].Quantity)
	suite.Equal("wasm_signal", orders[0].Reason)
	suite.True(orders[0].LimitPrice.IsNone())

	suite.Equal(types.PurchaseTypeSell, orders[1].Side)
	suite.Equal(types.OrderTypeLimit, orders[1].Type)
	suite.Equal(101.5, orders[1].LimitPrice.Unwrap())

	for i := range orders {
		suite.NoError(orders[i].Validate())
	}
}

func (suite *WasmTestSuite) TestOnBarEmptyResponse() {
	m := validModule()
	m.Response = ""

	orders, err := onBar(suite.newAlgorithm(m))
	suite.NoError(err)
	suite.Empty(orders)
}

func (suite *WasmTestSuite) TestOnBarFailures() {
	tests := []struct {
		name     string
		response string
		onBar    wasmtest.OnBar
	}{
		{name: "reported error", response: `{"error":"indicator diverged"}`},
		{name: "invalid response", response: `{"orders":`},
		{name: "trap", onBar: wasmtest.OnBarTrap},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			m := validModule()
			m.Response = tc.response
			m.OnBar = tc.onBar

			_, err := onBar(suite.newAlgorithm(m))
			suite.True(errors.HasCode(err, errors.ErrCodeAlgorithmError), "got %v", err)
		})
	}
}

func (suite *WasmTestSuite) TestOnBarCallTimeout() {
	runtime := NewRuntime(suite.ctx, 50*time.Millisecond, nil)
	defer runtime.Close(suite.ctx)

	m := validModule()
	m.OnBar = wasmtest.OnBarSpin

	module, err := runtime.LoadBytes(suite.ctx, "spin", m.Bytes())
	suite.Require().NoError(err)

	algo, err := module.New(nil)
	suite.Require().NoError(err)

	done := make(chan error, 1)
	go func() {
		_, err := onBar(algo)
		done <- err
	}()

	select {
	case err := <-done:
		suite.True(errors.HasCode(err, errors.ErrCodeAlgorithmError), "got %v", err)
	case <-time.After(5 * time.Second):
		suite.Fail("call was not interrupted")
	}
}

func (suite *WasmTestSuite) TestInitErrorIsConfigError() {
	m := validModule()
	m.InitError = "size must be positive"

	module, err := suite.runtime.LoadBytes(suite.ctx, "constant", m.Bytes())
	suite.Require().NoError(err)

	_, err = module.New(map[string]any{"size": -1})
	suite.True(errors.HasCode(err, errors.ErrCodeAlgorithmConfigError), "got %v", err)
	suite.Contains(err.Error(), "size must be positive")
}

func (suite *WasmTestSuite) TestInstancesAreIndependent() {
	module, err := suite.runtime.LoadBytes(suite.ctx, "constant", validModule().Bytes())
	suite.Require().NoError(err)

	first, err := module.New(nil)
	suite.Require().NoError(err)

	second, err := module.New(nil)
	suite.Require().NoError(err)
	defer algorithm.Release(second)

	suite.Require().NoError(algorithm.Release(first))

	_, err = onBar(first)
	suite.True(errors.HasCode(err, errors.ErrCodeAlgorithmError), "got %v", err)

	orders, err := onBar(second)
	suite.NoError(err)
	suite.Len(orders, 2)
}

func (suite *WasmTestSuite) TestWarmupChecksLookback() {
	registry := algorithm.NewRegistry()

	module, err := suite.runtime.LoadBytes(suite.ctx, "constant", validModule().Bytes())
	suite.Require().NoError(err)
	suite.Require().NoError(registry.Register(module.Metadata(), module.New))

	_, err = registry.NewForRun("constant", nil, 2)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter), "got %v", err)

	algo, err := registry.NewForRun("constant@^1.2", nil, 3)
	suite.Require().NoError(err)
	suite.NoError(algorithm.Release(algo))
}

func (suite *WasmTestSuite) TestLoadDir() {
	dir := suite.T().TempDir()

	second := validModule()
	second.Info = `{"name":"Second","version":"0.2.0"}`

	suite.Require().NoError(os.WriteFile(filepath.Join(dir, "b_second.wasm"), second.Bytes(), 0o600))
	suite.Require().NoError(os.WriteFile(filepath.Join(dir, "a_first.wasm"), validModule().Bytes(), 0o600))
	suite.Require().NoError(os.WriteFile(filepath.Join(dir, "README.md"), []byte("modules"), 0o600))
	suite.Require().NoError(os.Mkdir(filepath.Join(dir, "nested.wasm"), 0o700))

	registry := algorithm.NewRegistry()

	loaded, err := suite.runtime.LoadDir(suite.ctx, dir, registry)
	suite.Require().NoError(err)
	suite.Require().Len(loaded, 2)
	suite.Equal("a_first", loaded[0].ID)
	suite.Equal("b_second", loaded[1].ID)

	meta, _, err := registry.Get("b_second@0.2.0")
	suite.Require().NoError(err)
	suite.Equal("Second", meta.Name)
}

func (suite *WasmTestSuite) TestLoadDirFailures() {
	suite.Run("missing directory", func() {
		_, err := suite.runtime.LoadDir(suite.ctx, filepath.Join(suite.T().TempDir(), "missing"), algorithm.NewRegistry())
		suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration), "got %v", err)
	})

	suite.Run("id clashes with a builtin", func() {
		dir := suite.T().TempDir()
		suite.Require().NoError(os.WriteFile(filepath.Join(dir, algorithm.MomentumID+".wasm"), validModule().Bytes(), 0o600))

		_, err := suite.runtime.LoadDir(suite.ctx, dir, algorithm.DefaultRegistry())
		suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration), "got %v", err)
	})
}
