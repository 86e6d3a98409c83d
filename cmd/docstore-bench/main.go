// Package main provides docstore-bench, a tool to seed a store directory
// with synthetic entities and report insert/query throughput.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/docstore"
	"github.com/calvinalkan/docstore/internal/value"
)

// report is the yaml-serialized shape written to --out, one entry per seeded
// count.
type report struct {
	Runs []runResult `yaml:"runs"`
}

type runResult struct {
	Count         int     `yaml:"count"`
	SeedSeconds   float64 `yaml:"seed_seconds"`
	QuerySeconds  float64 `yaml:"query_seconds"`
	QueryMatches  int     `yaml:"query_matches"`
	ReopenSeconds float64 `yaml:"reopen_seconds"`
}

var (
	countsFlag  = pflag.String("counts", "1000,50000", "comma-separated entity counts to seed and benchmark")
	rootFlag    = pflag.String("root", filepath.Join(os.TempDir(), "docstore-bench"), "benchmark data root directory")
	outFlag     = pflag.String("out", "", "path to write a YAML report; defaults to <root>/report.yaml")
	queryFlag   = pflag.String("query", "age >= 30 and active == true", "filter text to run as the query benchmark")
	seedFlag    = pflag.Int64("seed", 1, "PRNG seed for synthetic field values")
	workersFlag = pflag.Int("workers", runtime.NumCPU(), "number of concurrent seeders")
)

func main() {
	pflag.Parse()

	counts, err := parseCounts(*countsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docstore-bench: %v\n", err)
		os.Exit(1)
	}

	out := *outFlag
	if out == "" {
		out = filepath.Join(*rootFlag, "report.yaml")
	}

	var rpt report

	for _, count := range counts {
		res, err := benchOne(*rootFlag, count, *queryFlag, *seedFlag, *workersFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "docstore-bench: count %d: %v\n", count, err)
			os.Exit(1)
		}

		fmt.Printf("count=%d seed=%s query=%s(%d matches) reopen=%s\n",
			count, res.seedDuration, res.queryDuration, res.matches, res.reopenDuration)

		rpt.Runs = append(rpt.Runs, runResult{
			Count:         count,
			SeedSeconds:   res.seedDuration.Seconds(),
			QuerySeconds:  res.queryDuration.Seconds(),
			QueryMatches:  res.matches,
			ReopenSeconds: res.reopenDuration.Seconds(),
		})
	}

	if err := writeReport(out, rpt); err != nil {
		fmt.Fprintf(os.Stderr, "docstore-bench: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", out)
}

func parseCounts(raw string) ([]int, error) {
	var counts []int

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid count %q: %w", part, err)
		}

		counts = append(counts, n)
	}

	if len(counts) == 0 {
		return nil, fmt.Errorf("no counts specified")
	}

	return counts, nil
}

type benchResult struct {
	seedDuration   time.Duration
	queryDuration  time.Duration
	matches        int
	reopenDuration time.Duration
}

func benchOne(root string, count int, queryText string, seed int64, workers int) (benchResult, error) {
	dir := filepath.Join(root, strconv.Itoa(count))

	_ = os.RemoveAll(dir)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return benchResult{}, fmt.Errorf("creating directory: %w", err)
	}

	ctx := context.Background()

	store, err := docstore.OpenWithOptions(ctx, docstore.Options{BaseDir: dir, Lock: true})
	if err != nil {
		return benchResult{}, fmt.Errorf("open: %w", err)
	}

	seedStart := time.Now()

	if err := seedEntities(ctx, store, count, seed, workers); err != nil {
		_ = store.Close(ctx)

		return benchResult{}, fmt.Errorf("seed: %w", err)
	}

	seedDuration := time.Since(seedStart)

	queryStart := time.Now()

	matches, err := store.Query(ctx, queryText)
	if err != nil {
		_ = store.Close(ctx)

		return benchResult{}, fmt.Errorf("query: %w", err)
	}

	queryDuration := time.Since(queryStart)

	if err := store.Close(ctx); err != nil {
		return benchResult{}, fmt.Errorf("close: %w", err)
	}

	reopenStart := time.Now()

	store2, err := docstore.OpenWithOptions(ctx, docstore.Options{BaseDir: dir, Lock: true})
	if err != nil {
		return benchResult{}, fmt.Errorf("reopen: %w", err)
	}

	reopenDuration := time.Since(reopenStart)

	if err := store2.Close(ctx); err != nil {
		return benchResult{}, fmt.Errorf("close reopened store: %w", err)
	}

	return benchResult{
		seedDuration:   seedDuration,
		queryDuration:  queryDuration,
		matches:        len(matches),
		reopenDuration: reopenDuration,
	}, nil
}

// seedEntities inserts count synthetic entities concurrently. Insert itself
// serializes on the store's single mutex, so concurrency here buys pipeline
// overlap between field generation and the insert call, not lock-free
// writes.
func seedEntities(ctx context.Context, store *docstore.Store, count int, seed int64, workers int) error {
	if workers < 1 {
		workers = 1
	}

	type job struct {
		index int
	}

	jobs := make(chan job, workers*2)
	errs := make(chan error, workers)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		rng := rand.New(rand.NewSource(seed + int64(w))) //nolint:gosec // synthetic benchmark data only

		wg.Add(1)

		go func(rng *rand.Rand) {
			defer wg.Done()

			for j := range jobs {
				id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.Itoa(j.index))).String()

				if err := store.Insert(ctx, id, syntheticFields(rng, j.index)); err != nil {
					select {
					case errs <- err:
					default:
					}

					return
				}
			}
		}(rng)
	}

	for i := 0; i < count; i++ {
		jobs <- job{index: i}
	}

	close(jobs)
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}

	return nil
}

func syntheticFields(rng *rand.Rand, i int) *value.OrderedMap {
	cities := []string{"Belgrade", "Paris", "Berlin", "Madrid", "Oslo"}

	fields := value.NewOrderedMap()
	fields.Set("seq", value.NumberValue(float64(i)))
	fields.Set("age", value.NumberValue(float64(18+rng.Intn(60))))
	fields.Set("active", value.BoolValue(rng.Intn(2) == 0))

	address := value.NewOrderedMap()
	address.Set("city", value.StringValue(cities[rng.Intn(len(cities))]))
	fields.Set("address", value.MapValue(address))

	return fields
}

func writeReport(path string, rpt report) error {
	data, err := yaml.Marshal(rpt)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
