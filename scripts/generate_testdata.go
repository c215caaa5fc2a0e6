//go:build ignore

// generate_testdata.go creates demo SQLite datasets and a matching config.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//   testdata/demo/small.db    (1,000 rows)
//   testdata/demo/medium.db   (50,000 rows)
//   testdata/demo/large.db    (500,000 rows)
//   testdata/demo/config.yaml (points at medium.db)
//   testdata/demo/filters.json
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/chartsync/pkg/config"
	"github.com/vanderheijden86/chartsync/pkg/testutil"
)

type datasetSpec struct {
	name string
	size int
}

var datasets = []datasetSpec{
	{"small", 1000},
	{"medium", 50000},
	{"large", 500000},
}

func main() {
	outputDir := "testdata/demo"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	for _, ds := range datasets {
		fmt.Printf("Generating %s dataset (%d rows)...\n", ds.name, ds.size)

		cfg := testutil.DefaultConfig()
		cfg.Seed = int64(ds.size) // Reproducible per-size
		rows := testutil.New(cfg).Rows(ds.size)

		outputPath := filepath.Join(outputDir, ds.name+".db")
		_ = os.Remove(outputPath)
		if err := testutil.WriteSQLite(ctx, outputPath, "flights", rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputPath, err)
			os.Exit(1)
		}
		fmt.Printf("  Written %s (%v by carrier)\n", outputPath, testutil.CountBy(rows))
	}

	filterPath := filepath.Join(outputDir, "filters.json")
	if err := os.WriteFile(filterPath, []byte(testutil.FiltersJSON("AA", "UA")+"\n"), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", filterPath, err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.Dashboard.Database = "medium.db"
	cfg.Dashboard.Table = "flights"
	cfg.Dashboard.FilterFile = "filters.json"
	cfg.Dashboard.Charts = []config.ChartConfig{
		{ID: "carrier", Kind: config.KindBar, Dimension: "carrier", Groups: []string{"main"}},
		{ID: "hour", Kind: config.KindRow, Dimension: "hour", Groups: []string{"main"}},
		{ID: "share", Kind: config.KindPie, Dimension: "carrier", Groups: []string{"main"}},
		{ID: "by-hour", Kind: config.KindHeatmap, Dimension: "carrier,hour", Groups: []string{"main"}},
		{ID: "delays", Kind: config.KindRaster, Dimension: "dist,delay", Bounds: []float64{0, 0, 3000, 120}, Groups: []string{"geo"}},
	}
	if err := config.SaveTo(cfg, filepath.Join(outputDir, "config.yaml")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nDone! Run: chartsync -config", filepath.Join(outputDir, "config.yaml"))
}
