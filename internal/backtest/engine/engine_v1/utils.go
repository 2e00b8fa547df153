package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rxtech-lab/argo-fund/internal/types"
)

// GetResultFolder returns where the results of a run are written:
// <root>/<algorithm>/<symbol>/<start>_<end>/<runID>.
func GetResultFolder(root string, runID string, config types.BacktestConfig) string {
	// version constraints are not valid in every file system
	algorithmFolder := strings.NewReplacer("@", "_", "^", "", "~", "", ">", "", "<", "", "=", "", " ", "").
		Replace(config.AlgorithmID)

	timeRange := fmt.Sprintf("%s_%s", config.Start.Format("20060102"), config.End.Format("20060102"))

	return filepath.Join(root, algorithmFolder, config.Symbol, timeRange, runID)
}
