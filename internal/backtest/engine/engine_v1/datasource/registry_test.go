package datasource

import (
	"testing"

	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	memory := NewInMemoryDataSource("memory")
	demo := NewInMemoryDataSource("demo")

	registry, err := NewRegistry(memory, demo)
	require.NoError(t, err)

	ds, err := registry.Get("memory")
	require.NoError(t, err)
	assert.Same(t, memory, ds)

	_, err = registry.Get("yahoo")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownDataSource))

	err = registry.Register(NewInMemoryDataSource("demo"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	assert.Equal(t, []string{"demo", "memory"}, registry.Names())
	assert.NoError(t, registry.Close())
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewInMemoryDataSource("a"), NewInMemoryDataSource("a"))
	assert.Error(t, err)
}
