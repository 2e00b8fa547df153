package main

import (
	"log"
	"os"
	"path/filepath"

	engine "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
)

const (
	schemaName = "backtest-run-request.json"
	sampleName = "backtest-run-request.yaml"
)

// sampleRequest is a runnable request against the demo synthetic data source.
const sampleRequest = `symbol: AAPL
start_date: "2023-01-02"
end_date: "2023-12-29"
initial_capital: 100000
data_source: demo
benchmark: sp500
timeframe: 1d
slippage_model:
  type: fixed
  rate: 0.001
commission_model:
  type: percentage
  rate: 0.001
algorithm_id: momentum
algorithm_params:
  fast_period: 10
  slow_period: 30
risk_free_rate: 0.02
allow_short: false
gap_policy: skip
`

// generate writes the run request schema and, when missing, a sample run file into dir.
func generate(dir string) error {
	schemaJSON, err := (&engine.RunRequest{}).GenerateSchemaJSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, schemaName), []byte(schemaJSON), 0644); err != nil {
		return err
	}

	samplePath := filepath.Join(dir, sampleName)
	if _, err := os.Stat(samplePath); os.IsNotExist(err) {
		// point yaml-language-server at the schema for editor completion
		content := "# yaml-language-server: $schema=" + schemaName + "\n" + sampleRequest
		if err := os.WriteFile(samplePath, []byte(content), 0644); err != nil {
			return err
		}

		log.Printf("Sample run file generated at %s", samplePath)
	}

	return nil
}

func main() {
	if err := generate("./config"); err != nil {
		log.Fatalf("Failed to generate schema: %v", err)
	}

	log.Printf("Schema successfully generated at %s", filepath.Join("./config", schemaName))
}
