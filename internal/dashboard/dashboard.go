// Package dashboard builds chart handles from configuration and binds them to
// a coordinator and a SQLite data source.
package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/vanderheijden86/chartsync/internal/datasource"
	"github.com/vanderheijden86/chartsync/pkg/aggregate"
	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/config"
	"github.com/vanderheijden86/chartsync/pkg/coordinator"
	"github.com/vanderheijden86/chartsync/pkg/eventlog"
	"github.com/vanderheijden86/chartsync/pkg/future"
	"github.com/vanderheijden86/chartsync/pkg/lock"
	"github.com/vanderheijden86/chartsync/pkg/registry"
)

// Dashboard is a set of charts over one data source.
type Dashboard struct {
	src        *datasource.Source
	coord      *coordinator.Coordinator
	log        *eventlog.Logger
	filterFile string

	order   []string
	charts  map[string]chart.Refreshable
	groups  map[string][]string
	rasters map[string]*chart.Raster
}

// Build creates every chart in cfg, registers them with coord, and registers
// the filtered row count as the source's aggregate.
func Build(cfg config.DashboardConfig, src *datasource.Source, coord *coordinator.Coordinator, log *eventlog.Logger) (*Dashboard, error) {
	d := &Dashboard{
		src:        src,
		coord:      coord,
		log:        log.Named("dashboard"),
		filterFile: cfg.FilterFile,
		charts:     make(map[string]chart.Refreshable),
		groups:     make(map[string][]string),
		rasters:    make(map[string]*chart.Raster),
	}

	for _, cc := range cfg.Charts {
		c, err := d.newChart(cc)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.order = append(d.order, cc.ID)
		d.charts[cc.ID] = c
		d.groups[cc.ID] = cc.Groups
		coord.Registry().Register(c, cc.Groups...)
	}

	coord.RegisterAggregate(aggregate.Func{
		ID: src.ID(),
		Value: func(ctx context.Context) (float64, error) {
			n, err := src.Count(ctx)
			return float64(n), err
		},
	})
	return d, nil
}

func (d *Dashboard) newChart(cc config.ChartConfig) (chart.Refreshable, error) {
	dims := splitDims(cc.Dimension)
	opts := []chart.Option{
		chart.WithOnData(d.logData),
		chart.WithOnError(func(err error) {
			d.log.Warn("chart_error", map[string]any{"chart": cc.ID, "error": err})
		}),
	}

	switch cc.Kind {
	case config.KindBar, config.KindRow, config.KindPie:
		return chart.NewBase(cc.ID, d.groupFetch(dims), opts...), nil
	case config.KindHeatmap:
		opts = append(opts, chart.WithRenderOnly(true))
		return chart.NewBase(cc.ID, d.groupFetch(dims), opts...), nil
	case config.KindRaster:
		if len(dims) != 2 {
			return nil, fmt.Errorf("chart %s: raster needs x and y columns", cc.ID)
		}
		initial := chart.Bounds{MaxX: 1, MaxY: 1}
		if len(cc.Bounds) == 4 {
			initial = chart.Bounds{MinX: cc.Bounds[0], MinY: cc.Bounds[1], MaxX: cc.Bounds[2], MaxY: cc.Bounds[3]}
		}
		r := chart.NewRaster(cc.ID, &densityBackend{src: d.src, x: dims[0], y: dims[1]}, initial, opts...)
		d.rasters[cc.ID] = r
		return r, nil
	default:
		return nil, fmt.Errorf("chart %s: unknown kind %q", cc.ID, cc.Kind)
	}
}

func (d *Dashboard) groupFetch(dims []string) chart.DataFunc {
	return func(ctx context.Context, _ chart.Request) (any, error) {
		return d.src.GroupCounts(ctx, dims...)
	}
}

func (d *Dashboard) logData(res chart.Result) {
	if !d.log.Enabled(eventlog.LevelTrace) {
		return
	}
	d.log.Trace("chart_data", map[string]any{
		"chart":    res.ChartID,
		"query_id": res.QueryID,
		"pass":     res.Pass.ID,
		"kind":     res.Pass.Kind.String(),
	})
}

// Chart returns the chart with id, or nil.
func (d *Dashboard) Chart(id string) chart.Refreshable {
	return d.charts[id]
}

// Charts returns the charts in declaration order.
func (d *Dashboard) Charts() []chart.Refreshable {
	out := make([]chart.Refreshable, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.charts[id])
	}
	return out
}

// ApplyFilters installs f on the data source and redraws every group.
func (d *Dashboard) ApplyFilters(ctx context.Context, f datasource.Filters) (*future.Future[coordinator.Report], error) {
	if err := d.src.SetFilters(f); err != nil {
		return nil, err
	}
	d.log.Info("filters_applied", map[string]any{"columns": f.Columns()})
	return d.coord.RedrawAll(ctx, lock.AllGroups(), nil), nil
}

// ReloadFilters re-reads the configured filter file and applies it.
func (d *Dashboard) ReloadFilters(ctx context.Context) (*future.Future[coordinator.Report], error) {
	if d.filterFile == "" {
		return nil, fmt.Errorf("no filter file configured")
	}
	f, err := datasource.LoadFilters(d.filterFile)
	if err != nil {
		return nil, err
	}
	return d.ApplyFilters(ctx, f)
}

// Pan moves a raster chart's viewport and redraws the chart's groups,
// leaving the rest of the dashboard alone.
func (d *Dashboard) Pan(ctx context.Context, id string, b chart.Bounds) (*future.Future[coordinator.Report], error) {
	r, ok := d.rasters[id]
	if !ok {
		return nil, fmt.Errorf("chart %s is not a raster chart", id)
	}
	r.Pan(b)
	groups := d.groups[id]
	if len(groups) == 0 {
		return d.coord.RedrawAll(ctx, lock.Group(registry.DefaultGroup), nil), nil
	}
	if len(groups) == 1 {
		return d.coord.RedrawAll(ctx, lock.Group(groups[0]), nil), nil
	}
	return d.coord.RedrawAll(ctx, lock.AllGroups(), nil), nil
}

// Close destroys and deregisters every chart and drops the aggregate.
// In-flight fetches for these charts settle as destroyed.
func (d *Dashboard) Close() {
	for _, id := range d.order {
		c := d.charts[id]
		if b, ok := c.(interface{ Destroy() }); ok {
			b.Destroy()
		}
		d.coord.Registry().Deregister(c)
	}
	d.coord.Aggregates().Deregister(d.src.ID())
}

func splitDims(s string) []string {
	var dims []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			dims = append(dims, p)
		}
	}
	return dims
}
