package interceptor

import (
	"context"
	"sync/atomic"
)

const (
	markerUnseen int32 = iota
	markerRunning
	markerTracked
)

// Marker is the per-request "already tracked" flag shared by every front door
// handling the same request.
type Marker struct {
	state atomic.Int32
}

type markerKey struct{}

// EnsureMarker returns ctx carrying a marker, reusing one placed by an outer
// front door.
func EnsureMarker(ctx context.Context) (context.Context, *Marker) {
	if m, ok := ctx.Value(markerKey{}).(*Marker); ok {
		return ctx, m
	}
	m := &Marker{}
	return context.WithValue(ctx, markerKey{}, m), m
}

func markerFrom(ctx context.Context) *Marker {
	m, _ := ctx.Value(markerKey{}).(*Marker)
	return m
}

// begin claims the marker for one pipeline run.
func (m *Marker) begin() bool {
	return m.state.CompareAndSwap(markerUnseen, markerRunning)
}

// finish closes the marker once a record was attempted, whether it was
// stored or failed. A skipped run reopens it for the next front door.
func (m *Marker) finish(attempted bool) {
	if attempted {
		m.state.Store(markerTracked)
		return
	}
	m.state.Store(markerUnseen)
}

func (m *Marker) Tracked() bool {
	return m.state.Load() == markerTracked
}
