package chart

import (
	"context"
	"fmt"
	"sync"
)

// Bounds is a viewport rectangle in data coordinates.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g,%g %g,%g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Ticket is the token handed to an image backend for one request.
type Ticket struct {
	Nonce  uint64
	Bounds Bounds
}

// ViewportGuard remembers the last issued nonce and the viewport the chart
// currently wants, so responses for superseded requests can be recognised.
type ViewportGuard struct {
	mu       sync.Mutex
	nonce    uint64
	viewport Bounds
}

// SetViewport records a pan or zoom.
func (g *ViewportGuard) SetViewport(b Bounds) {
	g.mu.Lock()
	g.viewport = b
	g.mu.Unlock()
}

// Viewport returns the current desired bounds.
func (g *ViewportGuard) Viewport() Bounds {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewport
}

// Issue allocates a new nonce for the current viewport.
func (g *ViewportGuard) Issue() Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nonce++
	return Ticket{Nonce: g.nonce, Bounds: g.viewport}
}

// IsCurrent reports whether t is still the newest request and its bounds still
// match the viewport.
func (g *ViewportGuard) IsCurrent(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return t.Nonce == g.nonce && t.Bounds == g.viewport
}

// Frame is a rendered image returned by a raster backend.
type Frame struct {
	Nonce  uint64
	Bounds Bounds
	Width  int
	Height int
	Pixels []byte
}

// RasterBackend renders frames out of process (an image server, a tile
// renderer). The returned frame must echo the ticket's nonce.
type RasterBackend interface {
	RenderFrame(ctx context.Context, t Ticket) (Frame, error)
}

// Raster is a map/raster chart. Each fetch is stamped with a viewport ticket;
// frames that come back for an outdated nonce or viewport are dropped instead
// of drawn.
type Raster struct {
	*Base
	guard   ViewportGuard
	backend RasterBackend
}

// NewRaster builds a render-only raster chart over backend.
func NewRaster(id string, backend RasterBackend, initial Bounds, opts ...Option) *Raster {
	r := &Raster{backend: backend}
	r.guard.SetViewport(initial)
	r.Base = NewBase(id, r.fetchFrame, append([]Option{WithRenderOnly(true)}, opts...)...)
	r.Base.accept = r.frameCurrent
	return r
}

// Pan moves the viewport. Frames requested for the old viewport are
// discarded when they arrive, including ones already past fetchFrame.
func (r *Raster) Pan(b Bounds) {
	r.Base.mu.Lock()
	r.guard.SetViewport(b)
	r.Base.cache = nil
	r.Base.cacheValid = false
	r.Base.mu.Unlock()
}

// Viewport returns the bounds the chart currently wants drawn.
func (r *Raster) Viewport() Bounds {
	return r.guard.Viewport()
}

func (r *Raster) fetchFrame(ctx context.Context, _ Request) (any, error) {
	ticket := r.guard.Issue()
	frame, err := r.backend.RenderFrame(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if frame.Nonce != ticket.Nonce || !r.guard.IsCurrent(Ticket{Nonce: frame.Nonce, Bounds: ticket.Bounds}) {
		return nil, fmt.Errorf("frame %d for %s: %w", frame.Nonce, ticket.Bounds, ErrStale)
	}
	frame.Bounds = ticket.Bounds
	return frame, nil
}

// frameCurrent runs under the Base lock, which Pan also holds, so a frame
// that passes here cannot be overtaken by a pan before it is stored.
func (r *Raster) frameCurrent(data any) bool {
	frame, ok := data.(Frame)
	if !ok {
		return false
	}
	return r.guard.IsCurrent(Ticket{Nonce: frame.Nonce, Bounds: frame.Bounds})
}
