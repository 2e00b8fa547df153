package datasource

import (
	stderrors "errors"
	"slices"
	"sync"

	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// Registry resolves the dataSource name of a backtest request.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]DataSource
}

// NewRegistry creates a registry holding the given sources.
func NewRegistry(sources ...DataSource) (*Registry, error) {
	r := &Registry{
		mu:      sync.RWMutex{},
		sources: make(map[string]DataSource),
	}

	for _, ds := range sources {
		if err := r.Register(ds); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a source. Names must be unique.
func (r *Registry) Register(ds DataSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[ds.Name()]; exists {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "data source %q is already registered", ds.Name())
	}

	r.sources[ds.Name()] = ds

	return nil
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.sources[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownDataSource, "unknown data source %q", name)
	}

	return ds, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Close closes every registered source.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, ds := range r.sources {
		if err := ds.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}
