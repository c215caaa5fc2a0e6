package dashboard

import (
	"context"
	"fmt"

	"github.com/vanderheijden86/chartsync/internal/datasource"
	"github.com/vanderheijden86/chartsync/pkg/chart"
)

const (
	gridSize    = 64
	pointBudget = 50000
)

// densityBackend rasterises filtered points into a gridSize x gridSize
// greyscale frame, one byte per cell, saturating at 255.
type densityBackend struct {
	src  *datasource.Source
	x, y string
}

func (d *densityBackend) RenderFrame(ctx context.Context, t chart.Ticket) (chart.Frame, error) {
	b := t.Bounds
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		return chart.Frame{}, fmt.Errorf("empty viewport %s", b)
	}
	pts, err := d.src.PointsIn(ctx, d.x, d.y, b, pointBudget)
	if err != nil {
		return chart.Frame{}, err
	}

	pixels := make([]byte, gridSize*gridSize)
	sx := float64(gridSize) / (b.MaxX - b.MinX)
	sy := float64(gridSize) / (b.MaxY - b.MinY)
	for _, p := range pts {
		cx := min(int((p.X-b.MinX)*sx), gridSize-1)
		cy := min(int((p.Y-b.MinY)*sy), gridSize-1)
		if i := cy*gridSize + cx; pixels[i] < 255 {
			pixels[i]++
		}
	}
	return chart.Frame{
		Nonce:  t.Nonce,
		Bounds: b,
		Width:  gridSize,
		Height: gridSize,
		Pixels: pixels,
	}, nil
}
