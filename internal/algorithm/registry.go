package algorithm

import (
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

type entry struct {
	metadata Metadata
	version  *semver.Version
	factory  Factory
}

// Registry maps algorithm ids to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{
		mu:      sync.RWMutex{},
		entries: make(map[string]entry),
	}
}

// DefaultRegistry returns a registry holding every built-in algorithm.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, b := range builtins() {
		if err := r.Register(b.metadata, b.factory); err != nil {
			panic(err)
		}
	}

	return r
}

// Register adds an algorithm. The id must be unique and the version a valid semantic version.
func (r *Registry) Register(metadata Metadata, factory Factory) error {
	if metadata.ID == "" || strings.Contains(metadata.ID, "@") {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid algorithm id %q", metadata.ID)
	}

	if factory == nil {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "algorithm %s has no factory", metadata.ID)
	}

	version, err := semver.NewVersion(metadata.Version)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "algorithm %s has an invalid version %q", metadata.ID, metadata.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[metadata.ID]; exists {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "algorithm %s is already registered", metadata.ID)
	}

	r.entries[metadata.ID] = entry{
		metadata: metadata,
		version:  version,
		factory:  factory,
	}

	return nil
}

// Get resolves a reference of the form "id" or "id@constraint", for example
// "momentum@^1.0". A constraint the registered version does not satisfy is an
// ErrCodeInvalidVersion error.
func (r *Registry) Get(ref string) (Metadata, Factory, error) {
	id, constraint, hasConstraint := strings.Cut(ref, "@")

	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return Metadata{}, nil, errors.Newf(errors.ErrCodeUnknownAlgorithm, "unknown algorithm %q", id)
	}

	if hasConstraint {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return Metadata{}, nil, errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid version constraint %q", constraint)
		}

		if !c.Check(e.version) {
			return Metadata{}, nil, errors.Newf(errors.ErrCodeInvalidVersion,
				"algorithm %s version %s does not satisfy %s", id, e.version, constraint)
		}
	}

	return e.metadata, e.factory, nil
}

// New creates a fresh instance of the referenced algorithm.
func (r *Registry) New(ref string, params map[string]any) (Algorithm, error) {
	_, factory, err := r.Get(ref)
	if err != nil {
		return nil, err
	}

	algo, err := factory(params)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeUnknown {
			return nil, errors.Wrap(errors.ErrCodeAlgorithmConfigError, "failed to create algorithm", err)
		}

		return nil, err
	}

	return algo, nil
}

// NewForRun creates the referenced algorithm and checks that a run keeping
// lookback bars of history gives it enough data to trade.
func (r *Registry) NewForRun(ref string, params map[string]any, lookback int) (Algorithm, error) {
	algo, err := r.New(ref, params)
	if err != nil {
		return nil, err
	}

	if err := CheckLookback(algo, lookback); err != nil {
		_ = Release(algo)

		return nil, err
	}

	return algo, nil
}

// List returns the metadata of every registered algorithm ordered by id.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Metadata, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e.metadata)
	}

	slices.SortFunc(list, func(a, b Metadata) int {
		return strings.Compare(a.ID, b.ID)
	})

	return list
}
