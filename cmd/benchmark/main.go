// Benchmark tool for measuring Merlin assessment throughput.
//
// Usage:
//
//	go run cmd/benchmark/main.go -rules ./rules -n 10000 -workers 8
//
// This tool:
//  1. Loads the rule catalogue once
//  2. Generates synthetic multi-domain payloads with a fixed seed
//  3. Runs assessments across concurrent workers
//  4. Reports throughput, latency percentiles and label distribution
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/ingest"
	"github.com/opensource-finance/merlin/internal/insight"
	"github.com/opensource-finance/merlin/internal/score"
	"github.com/opensource-finance/merlin/internal/session"
)

func main() {
	rulesDir := flag.String("rules", "./rules", "Rule document directory")
	n := flag.Int("n", 10000, "Number of assessments to run")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	periods := flag.Int("periods", 12, "Periods per synthetic payload table")
	seed := flag.Int64("seed", 42, "Random seed for payload generation")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            MERLIN BENCHMARK - Assessment Throughput            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nRules Dir:   %s\n", *rulesDir)
	fmt.Printf("Assessments: %d\n", *n)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Periods:     %d\n", *periods)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	provider, err := catalog.NewProvider(func() (*catalog.Catalogue, error) {
		return catalog.LoadDir(*rulesDir)
	})
	if err != nil {
		fmt.Printf("ERROR: failed to load rules: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Catalogue:   %d rules, version %s\n\n", provider.Current().Len(), provider.Current().Version())

	svc := session.NewService(
		provider,
		ingest.NewValidator(nil),
		engine.NewEvaluator(4, logger),
		score.NewScorer(score.DefaultWeights()),
		insight.NewGenerator(insight.DefaultTemplates(), logger),
		session.NewRegistry(cache.NewLRUStore(16), time.Minute),
		nil,
		logger,
	)

	// Pre-generate payload sets so generation cost stays out of the
	// measured loop.
	rng := rand.New(rand.NewSource(*seed))
	sets := make([][]*domain.Payload, *n)
	for i := range sets {
		sets[i] = syntheticPayloads(rng, *periods)
	}

	var (
		processed atomic.Int64
		errors    atomic.Int64
		labels    sync.Map
		latencies = make([]time.Duration, *n)
	)

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				t0 := time.Now()
				report, err := svc.Assess(context.Background(), sets[i])
				latencies[i] = time.Since(t0)
				if err != nil {
					errors.Add(1)
					continue
				}
				processed.Add(1)
				count, _ := labels.LoadOrStore(report.Breakdown.Label, new(atomic.Int64))
				count.(*atomic.Int64).Add(1)
			}
		}()
	}

	for i := 0; i < *n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	pct := func(p float64) time.Duration {
		idx := int(p * float64(len(latencies)-1))
		return latencies[idx]
	}

	fmt.Println("Results:")
	fmt.Printf("  Processed:   %d (%d errors)\n", processed.Load(), errors.Load())
	fmt.Printf("  Elapsed:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Throughput:  %.1f assessments/sec\n", float64(processed.Load())/elapsed.Seconds())
	fmt.Printf("  Latency p50: %s\n", pct(0.50).Round(time.Microsecond))
	fmt.Printf("  Latency p95: %s\n", pct(0.95).Round(time.Microsecond))
	fmt.Printf("  Latency p99: %s\n", pct(0.99).Round(time.Microsecond))
	fmt.Println("  Labels:")
	labels.Range(func(k, v any) bool {
		fmt.Printf("    %-18s %d\n", k, v.(*atomic.Int64).Load())
		return true
	})
}

// syntheticPayloads builds one plausible five-domain payload set. Values
// drift around a base with noise so rules see realistic variation.
func syntheticPayloads(rng *rand.Rand, periods int) []*domain.Payload {
	period := func(i int) string {
		return fmt.Sprintf("2024-%02d", i%12+1)
	}
	series := func(base, drift, noise float64) []float64 {
		out := make([]float64, periods)
		v := base
		for i := range out {
			v += drift + rng.NormFloat64()*noise
			out[i] = v
		}
		return out
	}

	revenue := series(100000, 1500, 3000)
	spend := series(20000, 300, 800)
	leads := series(500, 10, 25)
	output := series(1200, 15, 40)

	// Headcount is built from its own flows so the reconciliation rules
	// see consistent data.
	hiresSeries := make([]float64, periods)
	exitsSeries := make([]float64, periods)
	headcount := make([]float64, periods)
	hc := 80.0
	for i := 0; i < periods; i++ {
		hiresSeries[i] = float64(2 + rng.Intn(4))
		exitsSeries[i] = float64(rng.Intn(4))
		if i > 0 {
			hc += hiresSeries[i] - exitsSeries[i]
		}
		headcount[i] = hc
	}

	pnl := make([]domain.Row, periods)
	channel := make([]domain.Row, periods)
	hr := make([]domain.Row, periods)
	ops := make([]domain.Row, periods)
	product := make([]domain.Row, periods)
	for i := 0; i < periods; i++ {
		prodRev := revenue[i] * 0.7
		pnl[i] = domain.Row{
			"period":           period(i),
			"revenue":          revenue[i],
			"product_revenue":  prodRev,
			"services_revenue": revenue[i] - prodRev,
			"gross_profit":     revenue[i] * 0.55,
		}
		channel[i] = domain.Row{
			"period":             period(i),
			"spend":              spend[i],
			"leads":              leads[i],
			"attributed_revenue": revenue[i] * 0.3,
		}
		hr[i] = domain.Row{
			"period":    period(i),
			"headcount": headcount[i],
			"hires":     hiresSeries[i],
			"exits":     exitsSeries[i],
		}
		ops[i] = domain.Row{
			"period":      period(i),
			"orders":      leads[i] * 0.4,
			"utilization": 0.6 + rng.Float64()*0.3,
			"output":      output[i],
		}
		product[i] = domain.Row{
			"period":       period(i),
			"output_units": output[i],
		}
	}

	return []*domain.Payload{
		{Domain: "cfo", Tables: []domain.Table{{Name: "pnl", Rows: pnl}}},
		{Domain: "cmo", Tables: []domain.Table{{Name: "channel_report", Rows: channel}}},
		{Domain: "chro", Tables: []domain.Table{{Name: "hr", Rows: hr}}},
		{Domain: "coo", Tables: []domain.Table{{Name: "operations", Rows: ops}}},
		{Domain: "cpo", Tables: []domain.Table{{Name: "product", Rows: product}}},
	}
}
