package dashboard

import (
	"context"
	"testing"

	"github.com/vanderheijden86/chartsync/internal/datasource"
	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/config"
	"github.com/vanderheijden86/chartsync/pkg/coordinator"
	"github.com/vanderheijden86/chartsync/pkg/eventlog"
	"github.com/vanderheijden86/chartsync/pkg/future"
	"github.com/vanderheijden86/chartsync/pkg/lock"
	"github.com/vanderheijden86/chartsync/pkg/registry"
	"github.com/vanderheijden86/chartsync/pkg/testutil"
)

func seed(t *testing.T) string {
	return testutil.SeedDB(t, "flights", testutil.Flights())
}

type fixture struct {
	dash  *Dashboard
	coord *coordinator.Coordinator
	src   *datasource.Source
}

func build(t *testing.T, filterFile string) fixture {
	t.Helper()
	ctx := context.Background()
	src, err := datasource.Open(ctx, seed(t), "flights")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	cfg := config.DashboardConfig{
		FilterFile: filterFile,
		Charts: []config.ChartConfig{
			{ID: "carrier", Kind: config.KindBar, Dimension: "carrier", Groups: []string{"main"}},
			{ID: "hour", Kind: config.KindRow, Dimension: "hour", Groups: []string{"main"}},
			{ID: "mix", Kind: config.KindHeatmap, Dimension: "carrier, hour", Groups: []string{"main"}},
			{ID: "map", Kind: config.KindRaster, Dimension: "dist,delay", Bounds: []float64{0, 0, 1, 1}, Groups: []string{"geo"}},
		},
	}
	coord := coordinator.New(registry.New(), coordinator.WithLogger(eventlog.Nop()))
	d, err := Build(cfg, src, coord, eventlog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return fixture{dash: d, coord: coord, src: src}
}

func settle(t *testing.T, f *future.Future[coordinator.Report]) coordinator.Report {
	t.Helper()
	return testutil.MustSettle(t, f)
}

func lastData(t *testing.T, c chart.Refreshable) any {
	t.Helper()
	applied, ok := c.(interface{ LastApplied() (chart.Result, bool) })
	if !ok {
		t.Fatalf("chart %s does not expose LastApplied", c.ChartID())
	}
	res, ok := applied.LastApplied()
	if !ok {
		t.Fatalf("chart %s has no applied data", c.ChartID())
	}
	return res.Data
}

func TestBuild_RegistersChartsAndAggregate(t *testing.T) {
	fx := build(t, "")
	reg := fx.coord.Registry()

	if got := len(reg.List("main")); got != 3 {
		t.Errorf("main group has %d charts, want 3", got)
	}
	if !reg.Has("geo", "map") {
		t.Error("raster chart not registered in geo")
	}
	if !chart.IsRenderOnly(fx.dash.Chart("mix")) {
		t.Error("heatmap should be render-only")
	}
	if chart.IsRenderOnly(fx.dash.Chart("carrier")) {
		t.Error("bar chart should redraw incrementally")
	}
	if fx.coord.Aggregates().Len() != 1 {
		t.Errorf("aggregates = %d, want 1", fx.coord.Aggregates().Len())
	}
	if len(fx.dash.Charts()) != 4 {
		t.Errorf("Charts() = %d, want 4", len(fx.dash.Charts()))
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	ctx := context.Background()
	src, err := datasource.Open(ctx, seed(t), "flights")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	coord := coordinator.New(registry.New())
	cfg := config.DashboardConfig{Charts: []config.ChartConfig{
		{ID: "ok", Kind: config.KindBar, Dimension: "carrier"},
		{ID: "bad", Kind: "sparkline", Dimension: "carrier"},
	}}
	if _, err := Build(cfg, src, coord, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if len(coord.Registry().ListAll()) != 0 {
		t.Error("failed build should leave the registry empty")
	}
}

func TestRenderAndFilter(t *testing.T) {
	fx := build(t, "")
	ctx := context.Background()

	rep := settle(t, fx.coord.RenderAll(ctx, lock.AllGroups()))
	testutil.AssertOutcomes(t, rep.Results, map[string]chart.Outcome{
		"carrier": chart.OutcomeApplied,
		"hour":    chart.OutcomeApplied,
		"mix":     chart.OutcomeApplied,
		"map":     chart.OutcomeApplied,
	})
	if n, _ := fx.coord.LastFilteredSize(fx.src.ID()); n != 6 {
		t.Errorf("filtered size = %v, want 6", n)
	}

	f, err := fx.dash.ApplyFilters(ctx, datasource.Filters{"carrier": {"AA"}})
	if err != nil {
		t.Fatal(err)
	}
	settle(t, f)

	if n, _ := fx.coord.LastFilteredSize(fx.src.ID()); n != 2 {
		t.Errorf("filtered size after filter = %v, want 2", n)
	}
	if b := lastData(t, fx.dash.Chart("carrier")).([]datasource.Bucket); len(b) != 3 {
		t.Errorf("carrier buckets = %d, want 3 (own filter ignored)", len(b))
	}
	if b := lastData(t, fx.dash.Chart("hour")).([]datasource.Bucket); len(b) != 2 {
		t.Errorf("hour buckets = %d, want 2", len(b))
	}

	frame := lastData(t, fx.dash.Chart("map")).(chart.Frame)
	var total int
	for _, p := range frame.Pixels {
		total += int(p)
	}
	if total != 2 {
		t.Errorf("raster density total = %d, want 2", total)
	}
}

func TestApplyFilters_RejectsUnknownColumn(t *testing.T) {
	fx := build(t, "")
	if _, err := fx.dash.ApplyFilters(context.Background(), datasource.Filters{"nope": {1}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestReloadFilters(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "filters.json", testutil.FiltersJSON("DL"))
	fx := build(t, path)
	ctx := context.Background()
	settle(t, fx.coord.RenderAll(ctx, lock.AllGroups()))

	f, err := fx.dash.ReloadFilters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	settle(t, f)
	if n, _ := fx.coord.LastFilteredSize(fx.src.ID()); n != 2 {
		t.Errorf("filtered size = %v, want 2", n)
	}

	none := build(t, "")
	if _, err := none.dash.ReloadFilters(ctx); err == nil {
		t.Error("expected error without a filter file")
	}
}

func TestPan_RedrawsRasterGroup(t *testing.T) {
	fx := build(t, "")
	ctx := context.Background()
	settle(t, fx.coord.RenderAll(ctx, lock.AllGroups()))

	f, err := fx.dash.Pan(ctx, "map", chart.Bounds{MinX: 0, MinY: 0, MaxX: 0.25, MaxY: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	rep := settle(t, f)
	if rep.Scope != lock.Group("geo") {
		t.Errorf("pan scope = %v, want geo", rep.Scope)
	}
	frame := lastData(t, fx.dash.Chart("map")).(chart.Frame)
	if frame.Bounds.MaxX != 0.25 {
		t.Errorf("frame bounds = %v, want panned viewport", frame.Bounds)
	}

	if _, err := fx.dash.Pan(ctx, "carrier", chart.Bounds{}); err == nil {
		t.Error("expected error panning a non-raster chart")
	}
}

func TestClose_DestroysCharts(t *testing.T) {
	fx := build(t, "")
	fx.dash.Close()

	if len(fx.coord.Registry().ListAll()) != 0 {
		t.Error("charts still registered after Close")
	}
	if !fx.dash.Chart("carrier").IsDestroyed() {
		t.Error("chart not destroyed")
	}
	if fx.coord.Aggregates().Len() != 0 {
		t.Error("aggregate still registered after Close")
	}
}
