// Package service owns the lifecycle of backtest runs: it queues them, runs
// each one on its own goroutine under a concurrency limit, tracks progress
// and keeps finished runs for retrieval.
package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// subscriberBuffer is how many updates a slow subscriber may fall behind
// before intermediate progress updates are dropped for it.
const subscriberBuffer = 64

// ResultWriter persists the result of a completed run.
type ResultWriter interface {
	Write(folder string, runID string, config types.BacktestConfig, result *types.RunResult) (types.RunStats, error)
}

type Config struct {
	// MaxConcurrentRuns bounds how many runs execute at once. 0 means 1.
	MaxConcurrentRuns int
	// Retention is the number of terminal runs kept in memory. 0 keeps all.
	Retention int
	// ResultsFolder is where completed runs are written when a writer is set.
	ResultsFolder string
}

type Service struct {
	engine    engine.Engine
	writer    ResultWriter
	config    Config
	log       *logger.Logger
	sem       *semaphore.Weighted
	baseCtx   context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup
	now       func() time.Time
	newID     func() string
	mu        sync.RWMutex
	runs      map[string]*runEntry
	order     []string
	isStopped bool
}

type runEntry struct {
	run         types.BacktestRun
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[chan types.BacktestRun]struct{}
}

func NewService(eng engine.Engine, writer ResultWriter, config Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if config.MaxConcurrentRuns <= 0 {
		config.MaxConcurrentRuns = 1
	}

	ctx, stop := context.WithCancel(context.Background())

	return &Service{
		engine:    eng,
		writer:    writer,
		config:    config,
		log:       log,
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrentRuns)),
		baseCtx:   ctx,
		stop:      stop,
		wg:        sync.WaitGroup{},
		now:       time.Now,
		newID:     uuid.NewString,
		mu:        sync.RWMutex{},
		runs:      make(map[string]*runEntry),
		order:     []string{},
		isStopped: false,
	}
}

// Submit validates config, queues a run for it and returns the queued run.
func (s *Service) Submit(config types.BacktestConfig) (types.BacktestRun, error) {
	if err := config.Validate(); err != nil {
		return types.BacktestRun{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStopped {
		return types.BacktestRun{}, errors.New(errors.ErrCodeCancellationRequested, "service is shutting down")
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	entry := &runEntry{
		run: types.BacktestRun{
			ID:           s.newID(),
			Config:       config,
			State:        types.RunStateQueued,
			Progress:     types.Progress{BarsProcessed: 0, TotalBars: 0},
			LastBarIndex: -1,
			CreatedAt:    s.now(),
		},
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[chan types.BacktestRun]struct{}),
	}

	s.runs[entry.run.ID] = entry
	s.order = append(s.order, entry.run.ID)

	s.log.Info("Backtest queued",
		zap.String("run_id", entry.run.ID),
		zap.String("symbol", config.Symbol),
		zap.String("algorithm", config.AlgorithmID),
	)

	s.wg.Add(1)

	go s.execute(ctx, entry.run.ID)

	return entry.run, nil
}

// Get returns a snapshot of the run.
func (s *Service) Get(runID string) (types.BacktestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[runID]
	if !ok {
		return types.BacktestRun{}, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", runID)
	}

	return entry.run, nil
}

// List returns every retained run in submission order.
func (s *Service) List() []types.BacktestRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]types.BacktestRun, 0, len(s.order))
	for _, id := range s.order {
		runs = append(runs, s.runs[id].run)
	}

	return runs
}

// Cancel requests cancellation and waits until the run is terminal or ctx is
// done. A queued run is cancelled at once. A running run finishes its
// in-flight bar first. Cancelling a terminal run is a no-op.
func (s *Service) Cancel(ctx context.Context, runID string) (types.BacktestRun, error) {
	s.mu.Lock()

	entry, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()

		return types.BacktestRun{}, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", runID)
	}

	switch entry.run.State {
	case types.RunStateQueued:
		entry.cancel()
		s.finishLocked(entry, types.RunStateCancelled, nil, errors.New(errors.ErrCodeCancellationRequested, "cancelled before start"))
		s.mu.Unlock()

		return entry.run, nil
	case types.RunStateRunning:
		s.log.Info("Cancelling backtest", zap.String("run_id", runID))
		entry.cancel()
	}

	done := entry.done
	s.mu.Unlock()

	return s.wait(ctx, runID, done)
}

// Wait blocks until the run is terminal or ctx is done.
func (s *Service) Wait(ctx context.Context, runID string) (types.BacktestRun, error) {
	s.mu.RLock()

	entry, ok := s.runs[runID]
	if !ok {
		s.mu.RUnlock()

		return types.BacktestRun{}, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", runID)
	}

	done := entry.done
	s.mu.RUnlock()

	return s.wait(ctx, runID, done)
}

func (s *Service) wait(ctx context.Context, runID string, done <-chan struct{}) (types.BacktestRun, error) {
	select {
	case <-done:
	case <-ctx.Done():
	}

	return s.Get(runID)
}

// Subscribe returns a channel receiving a snapshot of the run on every state
// or progress change. The channel is closed once the run is terminal.
// Intermediate progress updates may be dropped for slow readers. The
// terminal snapshot is always the last value before close.
func (s *Service) Subscribe(runID string) (<-chan types.BacktestRun, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.runs[runID]
	if !ok {
		return nil, nil, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", runID)
	}

	ch := make(chan types.BacktestRun, subscriberBuffer)
	ch <- entry.run

	if entry.run.State.IsTerminal() {
		close(ch)

		return ch, func() {}, nil
	}

	entry.subscribers[ch] = struct{}{}

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, ok := entry.subscribers[ch]; ok {
			delete(entry.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe, nil
}

// Shutdown cancels every queued and running run and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.isStopped = true
	s.mu.Unlock()

	s.stop()

	stopped := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) execute(ctx context.Context, runID string) {
	defer s.wg.Done()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		if entry, ok := s.runs[runID]; ok && !entry.run.State.IsTerminal() {
			s.finishLocked(entry, types.RunStateCancelled, nil, errors.Wrap(errors.ErrCodeCancellationRequested, "cancelled before start", err))
		}
		s.mu.Unlock()

		return
	}
	defer s.sem.Release(1)

	config, ok := s.start(runID)
	if !ok {
		return
	}

	onStart := engine.OnRunStartCallback(func(_ string, totalBars int) error {
		s.update(runID, func(run *types.BacktestRun) {
			run.Progress.TotalBars = totalBars
		})

		return nil
	})
	onData := engine.OnProcessDataCallback(func(current int, total int) error {
		s.update(runID, func(run *types.BacktestRun) {
			run.Progress = types.Progress{BarsProcessed: current, TotalBars: total}
		})

		return nil
	})

	result, err := s.engine.Run(ctx, runID, config, engine.LifecycleCallbacks{
		OnRunStart:    &onStart,
		OnRunEnd:      nil,
		OnProcessData: &onData,
	})

	state := types.RunStateCompleted

	switch {
	case err == nil:
		s.writeResult(runID, config, result)
	case errors.HasCode(err, errors.ErrCodeCancellationRequested):
		state = types.RunStateCancelled
	default:
		state = types.RunStateFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.runs[runID]; ok {
		s.finishLocked(entry, state, result, err)
	}
}

// start moves a queued run to running. It reports false when the run was
// cancelled while waiting for a slot.
func (s *Service) start(runID string) (types.BacktestConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.runs[runID]
	if !ok || entry.run.State != types.RunStateQueued {
		return types.BacktestConfig{}, false
	}

	startedAt := s.now()
	entry.run.State = types.RunStateRunning
	entry.run.StartedAt = &startedAt
	s.notifyLocked(entry)

	s.log.Info("Backtest started", zap.String("run_id", runID))

	return entry.run.Config, true
}

func (s *Service) update(runID string, mutate func(run *types.BacktestRun)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.runs[runID]
	if !ok || entry.run.State.IsTerminal() {
		return
	}

	mutate(&entry.run)
	s.notifyLocked(entry)
}

func (s *Service) writeResult(runID string, config types.BacktestConfig, result *types.RunResult) {
	if s.writer == nil || s.config.ResultsFolder == "" {
		return
	}

	folder := v1.GetResultFolder(s.config.ResultsFolder, runID, config)
	if _, err := s.writer.Write(folder, runID, config, result); err != nil {
		s.log.Error("Failed to write backtest results",
			zap.String("run_id", runID),
			zap.String("folder", folder),
			zap.Error(err),
		)
	}
}

// finishLocked moves entry to a terminal state. Callers hold s.mu.
func (s *Service) finishLocked(entry *runEntry, state types.RunState, result *types.RunResult, err error) {
	if entry.run.State.IsTerminal() {
		return
	}

	finishedAt := s.now()
	entry.run.State = state
	entry.run.FinishedAt = &finishedAt
	entry.run.Result = result

	if result != nil {
		entry.run.LastBarIndex = len(result.Equity) - 1
	}

	if state != types.RunStateCompleted {
		entry.run.Err = err
		entry.run.Reason = errors.Reason(err)
	}

	fields := []zap.Field{
		zap.String("run_id", entry.run.ID),
		zap.String("state", string(state)),
		zap.Int("bars_processed", entry.run.Progress.BarsProcessed),
	}

	if state == types.RunStateFailed {
		s.log.Error("Backtest failed", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("Backtest finished", fields...)
	}

	for ch := range entry.subscribers {
		sendTerminal(ch, entry.run)
		close(ch)
	}

	entry.subscribers = make(map[chan types.BacktestRun]struct{})

	entry.cancel()
	close(entry.done)
	s.evictLocked()
}

func (s *Service) notifyLocked(entry *runEntry) {
	for ch := range entry.subscribers {
		select {
		case ch <- entry.run:
		default:
		}
	}
}

// sendTerminal delivers the final snapshot to a subscriber that is not
// keeping up by dropping its oldest queued update.
func sendTerminal(ch chan types.BacktestRun, run types.BacktestRun) {
	for {
		select {
		case ch <- run:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}

// evictLocked drops the oldest terminal runs above the retention limit.
func (s *Service) evictLocked() {
	if s.config.Retention <= 0 {
		return
	}

	terminal := 0

	for _, id := range s.order {
		if s.runs[id].run.State.IsTerminal() {
			terminal++
		}
	}

	for i := 0; terminal > s.config.Retention && i < len(s.order); {
		id := s.order[i]
		if !s.runs[id].run.State.IsTerminal() {
			i++

			continue
		}

		delete(s.runs, id)
		s.order = slices.Delete(s.order, i, i+1)
		terminal--
	}
}
