package mocks

//go:generate mockgen -destination=./mock_algorithm.go -package=mocks github.com/rxtech-lab/argo-fund/internal/algorithm Algorithm
//go:generate mockgen -destination=./mock_datasource.go -package=mocks github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource DataSource
//go:generate mockgen -destination=./mock_engine.go -package=mocks github.com/rxtech-lab/argo-fund/internal/backtest/engine Engine
