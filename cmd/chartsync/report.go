package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/vanderheijden86/chartsync/internal/datasource"
	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/coordinator"
	"github.com/vanderheijden86/chartsync/pkg/metrics"
)

var (
	colorOK    = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#50FA7B"}
	colorWarn  = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#F1FA8C"}
	colorErr   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF5555"}
	colorMuted = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#6272A4"}
)

// printer writes pass reports, styled only when out is a terminal.
type printer struct {
	out    io.Writer
	styled bool

	title, ok, warn, bad, muted lipgloss.Style
}

func newPrinter(out io.Writer) *printer {
	styled := false
	if f, isFile := out.(*os.File); isFile {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return newPrinterStyled(out, styled)
}

func newPrinterStyled(out io.Writer, styled bool) *printer {
	p := &printer{out: out, styled: styled}
	if styled {
		p.title = lipgloss.NewStyle().Bold(true)
		p.ok = lipgloss.NewStyle().Foreground(colorOK)
		p.warn = lipgloss.NewStyle().Foreground(colorWarn)
		p.bad = lipgloss.NewStyle().Foreground(colorErr)
		p.muted = lipgloss.NewStyle().Foreground(colorMuted)
	}
	return p
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) notice(msg string) {
	fmt.Fprintln(p.out, p.render(p.muted, msg))
}

type sizer interface {
	LastFilteredSize(sourceID string) (float64, bool)
}

func (p *printer) report(rep coordinator.Report, err error, sourceID string, agg sizer) {
	var b strings.Builder

	header := fmt.Sprintf("%s pass #%d scope=%s", rep.Pass.Kind, rep.Pass.ID, rep.Scope)
	if rep.Skipped {
		header += " (skipped)"
	}
	fmt.Fprintf(&b, "%s  %s\n", p.render(p.title, header), p.render(p.muted, rep.Duration.String()))

	if n, ok := agg.LastFilteredSize(sourceID); ok {
		fmt.Fprintf(&b, "  rows: %.0f\n", n)
	}

	results := append([]chart.Result(nil), rep.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].ChartID < results[j].ChartID })
	for _, r := range results {
		fmt.Fprintf(&b, "  %-16s %s %s\n", r.ChartID, p.outcome(r.Outcome), describe(r.Data))
	}

	if err != nil {
		fmt.Fprintf(&b, "  %s\n", p.render(p.bad, "error: "+err.Error()))
	}
	fmt.Fprint(p.out, b.String())
}

func (p *printer) outcome(o chart.Outcome) string {
	label := fmt.Sprintf("%-9s", o)
	switch o {
	case chart.OutcomeApplied:
		return p.render(p.ok, label)
	case chart.OutcomeStale:
		return p.render(p.warn, label)
	default:
		return p.render(p.bad, label)
	}
}

func describe(data any) string {
	switch d := data.(type) {
	case []datasource.Bucket:
		var total int64
		for _, bk := range d {
			total += bk.Count
		}
		return fmt.Sprintf("%d groups, %d rows", len(d), total)
	case chart.Frame:
		return fmt.Sprintf("%dx%d frame %s", d.Width, d.Height, d.Bounds)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", d)
	}
}

func printMetrics(out io.Writer) {
	fmt.Fprintln(out, "timings:")
	for _, s := range metrics.AllTimingStats() {
		if s.Count == 0 {
			continue
		}
		fmt.Fprintf(out, "  %-20s n=%d p50=%.2fms p95=%.2fms\n", s.Name, s.Count, s.P50Ms, s.P95Ms)
	}
	vals := metrics.CounterValues()
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "counters:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %d\n", name, vals[name])
	}
}
