// Package batch runs many simulation configurations over the same data
// window concurrently. Parameter sweeps are the main consumer: each variant
// is one independent engine run, results land in the stores keyed by run ID.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/engine"
	"tradesim-lab/internal/observability"
	"tradesim-lab/internal/runid"
	"tradesim-lab/internal/storage"
)

// Options for creating a Runner.
type Options struct {
	ResultStore storage.ResultStore
	TradeStore  storage.TradeStore
	EquityStore storage.EquityStore

	// Workers bounds concurrent runs. Zero or negative means 1.
	Workers int

	Metrics *observability.Metrics
	Verbose bool
}

// Runner executes a set of configurations against one bar series.
type Runner struct {
	resultStore storage.ResultStore
	tradeStore  storage.TradeStore
	equityStore storage.EquityStore
	workers     int
	metrics     *observability.Metrics
	verbose     bool
}

// New creates a Runner.
func New(opts Options) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		resultStore: opts.ResultStore,
		tradeStore:  opts.TradeStore,
		equityStore: opts.EquityStore,
		workers:     workers,
		metrics:     opts.Metrics,
		verbose:     opts.Verbose,
	}
}

// Run executes every configuration and returns the results in input order.
// A failed or already-stored run leaves a nil slot and an entry in Errors;
// the rest of the sweep continues.
type RunResult struct {
	Results []*domain.SimulationResult
	Errors  []string
}

// Run executes the sweep. Bars, signals and higher-timeframe series are
// shared read-only across workers.
func (r *Runner) Run(ctx context.Context, cfgs []domain.SimulationConfig, bars []domain.Bar, signals domain.SignalSet, htf map[domain.Timeframe][]domain.Bar) (*RunResult, error) {
	if len(cfgs) == 0 {
		return &RunResult{}, nil
	}

	out := &RunResult{Results: make([]*domain.SimulationResult, len(cfgs))}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan int)

	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := r.runOne(ctx, &cfgs[i], bars, signals, htf)
				mu.Lock()
				if err != nil {
					out.Errors = append(out.Errors, fmt.Sprintf("variant %d: %v", i, err))
				} else {
					out.Results[i] = res
				}
				mu.Unlock()
			}
		}()
	}

	for i := range cfgs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	r.log("sweep finished: %d variants, %d errors", len(cfgs), len(out.Errors))
	return out, nil
}

// runOne executes and persists a single variant.
func (r *Runner) runOne(ctx context.Context, cfg *domain.SimulationConfig, bars []domain.Bar, signals domain.SignalSet, htf map[domain.Timeframe][]domain.Bar) (*domain.SimulationResult, error) {
	eng, err := engine.New(*cfg, bars, signals, htf)
	if err != nil {
		return nil, err
	}

	var timer func()
	if r.metrics != nil {
		timer = r.metrics.RunTimer(cfg.Symbol)
	}
	res, err := eng.Run(ctx)
	if timer != nil {
		timer()
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.RunFailed(cfg.Symbol)
		}
		return nil, err
	}

	id, err := runid.Compute(cfg, bars)
	if err != nil {
		return nil, fmt.Errorf("compute run id: %w", err)
	}
	res.RunID = id

	if err := r.persist(ctx, res); err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RunCompleted(cfg.Symbol, res.Metrics.TotalTrades)
	}
	r.log("run %s: %d trades net=%.4f", id, res.Metrics.TotalTrades, res.Metrics.NetPnL)
	return res, nil
}

// persist writes the run header, trades and equity curve. A duplicate run
// header means the identical run was already stored; that is not an error.
func (r *Runner) persist(ctx context.Context, res *domain.SimulationResult) error {
	if r.resultStore == nil {
		return nil
	}
	if err := r.resultStore.Insert(ctx, res); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.log("run %s already stored", res.RunID)
			return nil
		}
		return fmt.Errorf("store run: %w", err)
	}
	if r.tradeStore != nil {
		if err := r.tradeStore.InsertBulk(ctx, res.RunID, res.Trades); err != nil {
			return fmt.Errorf("store trades: %w", err)
		}
	}
	if r.equityStore != nil {
		if err := r.equityStore.InsertBulk(ctx, res.RunID, res.Equity); err != nil {
			return fmt.Errorf("store equity: %w", err)
		}
	}
	return nil
}

func (r *Runner) log(format string, args ...interface{}) {
	if r.verbose {
		log.Printf("[batch] "+format, args...)
	}
}
