// Package wasm loads trading algorithms compiled to WebAssembly and exposes
// them as algorithm factories.
//
// A module exports its linear memory as "memory" and these functions:
//
//	malloc(size i32) i32
//	free(ptr i32)
//	argo_algorithm_api_version() i32
//	argo_algorithm_info() i64
//	argo_algorithm_init(ptr i32, size i32) i64
//	argo_algorithm_on_bar(ptr i32, size i32) i64
//
// Inputs are JSON documents the host writes into a buffer obtained from
// malloc and releases with free. Results are JSON documents owned by the
// module and returned as (ptr << 32) | size. A zero size means an empty
// result. The module runs without file system, network, environment or
// clock access beyond what WASI provides by default.
package wasm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// APIVersion is the ABI version a module must report.
const APIVersion = 1

// DefaultCallTimeout bounds a single call into a module.
const DefaultCallTimeout = 5 * time.Second

const (
	exportMemory     = "memory"
	exportMalloc     = "malloc"
	exportFree       = "free"
	exportAPIVersion = "argo_algorithm_api_version"
	exportInfo       = "argo_algorithm_info"
	exportInit       = "argo_algorithm_init"
	exportOnBar      = "argo_algorithm_on_bar"
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var requiredExports = map[string]signature{
	exportMalloc:     {params: []api.ValueType{api.ValueTypeI32}, results: []api.ValueType{api.ValueTypeI32}},
	exportFree:       {params: []api.ValueType{api.ValueTypeI32}, results: nil},
	exportAPIVersion: {params: nil, results: []api.ValueType{api.ValueTypeI32}},
	exportInfo:       {params: nil, results: []api.ValueType{api.ValueTypeI64}},
	exportInit:       {params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, results: []api.ValueType{api.ValueTypeI64}},
	exportOnBar:      {params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, results: []api.ValueType{api.ValueTypeI64}},
}

// Info is what a module reports about itself.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Version is a semantic version.
	Version string `json:"version"`
	// WarmupBars is the history the algorithm needs before it can trade.
	WarmupBars int `json:"warmupBars"`
}

// Runtime compiles modules and instantiates one sandbox per run.
type Runtime struct {
	runtime     wazero.Runtime
	callTimeout time.Duration
	log         *logger.Logger
}

// NewRuntime creates a runtime. A non-positive callTimeout uses DefaultCallTimeout.
func NewRuntime(ctx context.Context, callTimeout time.Duration, log *logger.Logger) *Runtime {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	// a call that outlives its context is aborted and the instance closed
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	return &Runtime{
		runtime:     r,
		callTimeout: callTimeout,
		log:         log,
	}
}

// Close releases every compiled module and instance.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.runtime.Close(ctx)
}

// Module is a compiled algorithm module.
type Module struct {
	id       string
	info     Info
	compiled wazero.CompiledModule
	runtime  *Runtime
}

// Load compiles the module at path. The algorithm id is the file name
// without its extension.
func (rt *Runtime) Load(ctx context.Context, path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read algorithm module %s", path)
	}

	return rt.LoadBytes(ctx, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
}

// LoadBytes compiles a module from memory and registers it under id.
func (rt *Runtime) LoadBytes(ctx context.Context, id string, data []byte) (*Module, error) {
	compiled, err := rt.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to compile algorithm module %s", id)
	}

	if err := checkExports(id, compiled); err != nil {
		compiled.Close(ctx)

		return nil, err
	}

	m := &Module{
		id:       id,
		info:     Info{},
		compiled: compiled,
		runtime:  rt,
	}

	info, err := m.readInfo(ctx)
	if err != nil {
		compiled.Close(ctx)

		return nil, err
	}

	m.info = info

	rt.log.Info("Loaded algorithm module",
		zap.String("algorithm", id),
		zap.String("name", info.Name),
		zap.String("version", info.Version),
	)

	return m, nil
}

func checkExports(id string, compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "algorithm module %s does not export %s", id, exportMemory)
	}

	functions := compiled.ExportedFunctions()

	for name, want := range requiredExports {
		def, ok := functions[name]
		if !ok {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "algorithm module %s does not export %s", id, name)
		}

		if !slices.Equal(def.ParamTypes(), want.params) || !slices.Equal(def.ResultTypes(), want.results) {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "algorithm module %s exports %s with the wrong signature", id, name)
		}
	}

	return nil
}

// readInfo checks the ABI version and reads the module's metadata from a
// throwaway instance.
func (m *Module) readInfo(ctx context.Context) (Info, error) {
	inst, err := m.instantiate(ctx)
	if err != nil {
		return Info{}, err
	}
	defer inst.Close(ctx)

	callCtx, cancel := context.WithTimeout(ctx, m.runtime.callTimeout)
	defer cancel()

	results, err := inst.ExportedFunction(exportAPIVersion).Call(callCtx)
	if err != nil {
		return Info{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read the api version of %s", m.id)
	}

	if got := uint32(results[0]); got != APIVersion {
		return Info{}, errors.Newf(errors.ErrCodeInvalidConfiguration,
			"api version mismatch for %s, host: %d, module: %d", m.id, APIVersion, got)
	}

	results, err = inst.ExportedFunction(exportInfo).Call(callCtx)
	if err != nil {
		return Info{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read the info of %s", m.id)
	}

	data, err := readResult(inst, results[0])
	if err != nil {
		return Info{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read the info of %s", m.id)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "algorithm module %s returned invalid info", m.id)
	}

	if info.Name == "" {
		info.Name = m.id
	}

	if info.WarmupBars < 0 {
		return Info{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "algorithm module %s reports negative warmup bars", m.id)
	}

	return info, nil
}

func (m *Module) instantiate(ctx context.Context) (api.Module, error) {
	// anonymous instances so every run gets its own memory
	config := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize")

	inst, err := m.runtime.runtime.InstantiateModule(ctx, m.compiled, config)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeAlgorithmError, err, "failed to instantiate algorithm module %s", m.id)
	}

	return inst, nil
}

// Metadata describes the module for the algorithm registry.
func (m *Module) Metadata() algorithm.Metadata {
	return algorithm.Metadata{
		ID:          m.id,
		Name:        m.info.Name,
		Type:        algorithm.AlgorithmTypeCustom,
		Description: m.info.Description,
		Version:     m.info.Version,
	}
}

// New implements algorithm.Factory. Every call creates a fresh instance that
// must be released with algorithm.Release.
func (m *Module) New(params map[string]any) (algorithm.Algorithm, error) {
	ctx := context.Background()

	inst, err := m.instantiate(ctx)
	if err != nil {
		return nil, err
	}

	a := &Algorithm{
		id:          m.id,
		warmup:      m.info.WarmupBars,
		module:      inst,
		malloc:      inst.ExportedFunction(exportMalloc),
		free:        inst.ExportedFunction(exportFree),
		initFunc:    inst.ExportedFunction(exportInit),
		onBarFunc:   inst.ExportedFunction(exportOnBar),
		callTimeout: m.runtime.callTimeout,
	}

	if err := a.initialize(params); err != nil {
		_ = a.Close()

		return nil, err
	}

	return a, nil
}

// LoadDir compiles every .wasm file in dir and registers it. Files are
// loaded in name order.
func (rt *Runtime) LoadDir(ctx context.Context, dir string, registry *algorithm.Registry) ([]algorithm.Metadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read algorithm directory %s", dir)
	}

	loaded := []algorithm.Metadata{}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wasm" {
			continue
		}

		module, err := rt.Load(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		metadata := module.Metadata()
		if err := registry.Register(metadata, module.New); err != nil {
			return nil, err
		}

		loaded = append(loaded, metadata)
	}

	return loaded, nil
}
