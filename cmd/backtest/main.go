// Package main runs simulations from the command line: load a YAML
// configuration and an OHLCV series (CSV file or ClickHouse), generate or
// load signals, execute the engine, and write Markdown/CSV reports.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"gopkg.in/yaml.v3"

	"tradesim-lab/internal/batch"
	"tradesim-lab/internal/domain"
	"tradesim-lab/internal/indicator"
	"tradesim-lab/internal/mtf"
	"tradesim-lab/internal/observability"
	"tradesim-lab/internal/reporting"
	"tradesim-lab/internal/storage"
	"tradesim-lab/internal/storage/clickhouse"
	"tradesim-lab/internal/storage/memory"
	"tradesim-lab/internal/storage/migrations"
	"tradesim-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML simulation config (required)")
	barsCSV := flag.String("bars", "", "Path to OHLCV CSV file (timestamp_ms,open,high,low,close,volume)")
	clickhouseDSN := flag.String("clickhouse", "", "ClickHouse DSN for bar history (alternative to -bars)")
	postgresDSN := flag.String("postgres", "", "Postgres DSN for run results (defaults to in-memory)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated reports")
	fastPeriod := flag.Int("fast", 10, "Fast MA period for the demo crossover signals")
	slowPeriod := flag.Int("slow", 30, "Slow MA period for the demo crossover signals")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "-config is required")
		flag.Usage()
		os.Exit(1)
	}
	if *barsCSV == "" && *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "one of -bars or -clickhouse is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling run...\n", sig)
		cancel()
	}()

	metrics := observability.NewMetrics("")
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	bars, err := loadBars(ctx, cfg, *barsCSV, *clickhouseDSN, metrics)
	if err != nil {
		fatal("load bars: %v", err)
	}
	fmt.Printf("Loaded %d bars for %s %s\n", len(bars), cfg.Symbol, cfg.BaseTimeframe)

	htf, err := resampleHTF(cfg, bars)
	if err != nil {
		fatal("resample htf: %v", err)
	}

	signals := crossoverSignals(bars, *fastPeriod, *slowPeriod, cfg.AllowShort)

	resultStore, tradeStore, equityStore, cleanup, err := buildStores(ctx, *postgresDSN)
	if err != nil {
		fatal("storage: %v", err)
	}
	defer cleanup()

	runner := batch.New(batch.Options{
		ResultStore: resultStore,
		TradeStore:  tradeStore,
		EquityStore: equityStore,
		Workers:     1,
		Metrics:     metrics,
		Verbose:     *verbose,
	})

	sweep, err := runner.Run(ctx, []domain.SimulationConfig{*cfg}, bars, signals, htf)
	if err != nil {
		fatal("run: %v", err)
	}
	for _, e := range sweep.Errors {
		fmt.Fprintf(os.Stderr, "run error: %s\n", e)
	}

	report := reporting.Build(cfg.Symbol, cfg.BaseTimeframe, bars, sweep.Results)
	if err := writeReports(*outputDir, report, sweep.Results); err != nil {
		fatal("write reports: %v", err)
	}

	for _, res := range sweep.Results {
		if res == nil {
			continue
		}
		fmt.Printf("Run %s: %d trades, net %.2f (%.2f%%), max DD %.2f%%\n",
			res.RunID, res.Metrics.TotalTrades, res.Metrics.NetPnL,
			res.Metrics.NetPnLPct*100, res.Metrics.MaxDrawdownPct*100)
		if res.TerminatedEarly {
			fmt.Println("  terminated early: equity exhausted")
		}
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// loadConfig reads and validates the YAML simulation config.
func loadConfig(path string) (*domain.SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := domain.DefaultConfig("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// loadBars reads the candle series from a CSV file or ClickHouse.
func loadBars(ctx context.Context, cfg *domain.SimulationConfig, csvPath, chDSN string, m *observability.Metrics) ([]domain.Bar, error) {
	if csvPath != "" {
		bars, err := loadBarsCSV(csvPath)
		if err != nil {
			return nil, err
		}
		m.BarsLoaded.WithLabelValues("csv").Add(float64(len(bars)))
		return bars, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, chDSN)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	store := clickhouse.NewBarStore(conn)
	bars, err := store.GetAll(ctx, cfg.Symbol, cfg.BaseTimeframe)
	if err != nil {
		return nil, err
	}
	m.BarsLoaded.WithLabelValues("clickhouse").Add(float64(len(bars)))
	return bars, nil
}

// loadBarsCSV parses timestamp_ms,open,high,low,close,volume rows. A header
// line is skipped when the first field is not numeric.
func loadBarsCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	var bars []domain.Bar
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: expected 6 columns, got %d", i+1, len(rec))
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: bad timestamp %q", i+1, rec[0])
		}
		var vals [5]float64
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i+1, j+1, err)
			}
			vals[j-1] = v
		}
		bars = append(bars, domain.Bar{
			TimestampMs: ts,
			Open:        vals[0],
			High:        vals[1],
			Low:         vals[2],
			Close:       vals[3],
			Volume:      vals[4],
		})
	}
	return bars, nil
}

// resampleHTF builds the higher-timeframe series each configured MTF filter
// needs from the base bars.
func resampleHTF(cfg *domain.SimulationConfig, bars []domain.Bar) (map[domain.Timeframe][]domain.Bar, error) {
	if len(cfg.MTF) == 0 {
		return nil, nil
	}
	out := make(map[domain.Timeframe][]domain.Bar)
	for _, f := range cfg.MTF {
		if _, done := out[f.Timeframe]; done {
			continue
		}
		series, err := mtf.Resample(bars, f.Timeframe)
		if err != nil {
			return nil, err
		}
		out[f.Timeframe] = series
	}
	return out, nil
}

// crossoverSignals builds demo MA-cross entry/exit signals: long on fast
// crossing above slow, exit (and optionally short) on the cross down.
func crossoverSignals(bars []domain.Bar, fast, slow int, allowShort bool) domain.SignalSet {
	n := len(bars)
	s := domain.SignalSet{
		LongEntry:  make([]bool, n),
		LongExit:   make([]bool, n),
		ShortEntry: make([]bool, n),
		ShortExit:  make([]bool, n),
	}
	cache := indicator.New(bars)
	fastMA := cache.SMA(fast)
	slowMA := cache.SMA(slow)

	for i := 1; i < n; i++ {
		prevUp := fastMA[i-1] > slowMA[i-1]
		nowUp := fastMA[i] > slowMA[i]
		if math.IsNaN(fastMA[i-1]) || math.IsNaN(slowMA[i-1]) || math.IsNaN(fastMA[i]) || math.IsNaN(slowMA[i]) {
			continue
		}
		if nowUp && !prevUp {
			s.LongEntry[i] = true
			s.ShortExit[i] = true
		}
		if !nowUp && prevUp {
			s.LongExit[i] = true
			if allowShort {
				s.ShortEntry[i] = true
			}
		}
	}
	return s
}

// buildStores wires the result stores: Postgres when a DSN is given, else
// in-memory.
func buildStores(ctx context.Context, dsn string) (storage.ResultStore, storage.TradeStore, storage.EquityStore, func(), error) {
	if dsn == "" {
		return memory.NewResultStore(), memory.NewTradeStore(), memory.NewEquityStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	return postgres.NewResultStore(pool), postgres.NewTradeStore(pool), postgres.NewEquityStore(pool), pool.Close, nil
}

// writeReports renders the Markdown summary plus per-run trade CSVs.
func writeReports(dir string, report *reporting.Report, results []*domain.SimulationResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "runs.csv"), []byte(reporting.RenderRunsCSV(report.Runs)), 0o644); err != nil {
		return err
	}
	for _, res := range results {
		if res == nil || len(res.Trades) == 0 {
			continue
		}
		name := fmt.Sprintf("trades_%s.csv", res.RunID)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(reporting.RenderTradesCSV(res.Trades)), 0o644); err != nil {
			return err
		}
	}
	return nil
}
