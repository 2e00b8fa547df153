package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func (suite *UtilsTestSuite) TestGetResultFolder() {
	tests := []struct {
		name        string
		algorithmID string
		expected    string
	}{
		{
			name:        "plain id",
			algorithmID: "momentum",
			expected:    filepath.Join("results", "momentum", "AAPL", "20240101_20240601", "run-1"),
		},
		{
			name:        "id with version constraint",
			algorithmID: "momentum@^1.1",
			expected:    filepath.Join("results", "momentum_1.1", "AAPL", "20240101_20240601", "run-1"),
		},
		{
			name:        "id with range constraint",
			algorithmID: "mean-reversion@>= 1.0",
			expected:    filepath.Join("results", "mean-reversion_1.0", "AAPL", "20240101_20240601", "run-1"),
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			config := types.BacktestConfig{
				Symbol:      "AAPL",
				Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				End:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				AlgorithmID: tc.algorithmID,
			}

			suite.Equal(tc.expected, GetResultFolder("results", "run-1", config))
		})
	}
}
