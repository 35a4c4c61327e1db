package cmd

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

var (
	benchRuns     int
	benchParallel int
	benchCold     bool
)

var benchCmd = &cobra.Command{
	Use:   "bench <script>",
	Short: "Measure host start-up and repeated runs of a script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchRuns <= 0 {
			return fmt.Errorf("--runs must be positive, got %d", benchRuns)
		}
		if benchParallel > 1 {
			return benchPool(cmd.Context(), args[0])
		}

		start := time.Now()
		h, err := jshost.New(HostConfig())
		if err != nil {
			return err
		}
		initCost := time.Since(start)
		defer h.Shutdown(context.Background())

		costs := make([]time.Duration, 0, benchRuns)
		for i := 0; i < benchRuns; i++ {
			start := time.Now()
			if _, err := h.RunFile(cmd.Context(), args[0]); err != nil {
				return err
			}
			costs = append(costs, time.Since(start))
		}
		printBench(string(h.Runtime()), initCost, costs)
		return nil
	},
}

func benchPool(ctx context.Context, path string) error {
	start := time.Now()
	pool, err := jshost.NewPool(jshost.PoolConfig{Host: HostConfig(), PoolSize: benchParallel})
	if err != nil {
		return err
	}
	initCost := time.Since(start)
	defer pool.Close(context.Background())

	var (
		mu    sync.Mutex
		costs = make([]time.Duration, 0, benchRuns)
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(benchParallel)
	for i := 0; i < benchRuns; i++ {
		g.Go(func() error {
			if benchCold {
				pool.ClearCache()
			}
			start := time.Now()
			if _, err := pool.RunFile(ctx, path); err != nil {
				return err
			}
			d := time.Since(start)
			mu.Lock()
			costs = append(costs, d)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	stats := pool.Stats(context.Background())
	logger.L.Debug().Interface("stats", stats).Msg("Pool")
	printBench(fmt.Sprint(stats["runtime_type"]), initCost, costs)
	if cs, ok := stats["cache"].(map[string]interface{}); ok {
		printCacheStats(cs)
	}
	return nil
}

// printCacheStats prints the counters a cache backend reports, in a fixed
// order. Backends without hit counters print only what they have.
func printCacheStats(cs map[string]interface{}) {
	fmt.Printf("  cache %v", cs["type"])
	for _, k := range []string{"key_count", "bytes", "hits", "misses", "error"} {
		if v, ok := cs[k]; ok {
			fmt.Printf(" %s=%v", k, v)
		}
	}
	fmt.Println()
}

func printBench(engine string, initCost time.Duration, costs []time.Duration) {
	sort.Slice(costs, func(i, j int) bool { return costs[i] < costs[j] })
	var total time.Duration
	for _, c := range costs {
		total += c
	}
	bold := color.New(color.Bold)
	bold.Printf("%s", engine)
	fmt.Printf(" runs=%d parallel=%d\n", len(costs), max(benchParallel, 1))
	fmt.Printf("  init  %v\n", initCost)
	fmt.Printf("  mean  %v\n", total/time.Duration(len(costs)))
	fmt.Printf("  p50   %v\n", costs[len(costs)/2])
	fmt.Printf("  p99   %v\n", costs[(len(costs)*99)/100])
	fmt.Printf("  max   %v\n", costs[len(costs)-1])
}

func init() {
	benchCmd.Flags().IntVarP(&benchRuns, "runs", "n", 100, "number of runs")
	benchCmd.Flags().IntVar(&benchParallel, "parallel", 1, "run through a pool of this many hosts")
	benchCmd.Flags().BoolVar(&benchCold, "cold", false, "clear the shared bytecode cache before each pooled run")
	RootCmd.AddCommand(benchCmd)
}
