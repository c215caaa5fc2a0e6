package coordinator

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/chartsync/pkg/chart"
	"github.com/vanderheijden86/chartsync/pkg/lock"
)

// ErrRedrawBeforeRender is returned when a redraw is requested before any
// render pass has completed. It is a sequencing error and is never retried.
var ErrRedrawBeforeRender = errors.New("redraw requested before any render pass completed")

// PassError reports why a pass failed. ChartID is empty when the aggregate
// refresh failed before any chart was fetched.
type PassError struct {
	Kind    chart.PassKind
	PassID  uint64
	Scope   lock.Scope
	ChartID string
	Outcome chart.Outcome
	Cause   error
}

func (e *PassError) Error() string {
	where := "aggregate refresh"
	if e.ChartID != "" {
		where = "chart " + e.ChartID
	}
	return fmt.Sprintf("%s pass %d (scope %s): %s: %v", e.Kind, e.PassID, e.Scope, where, e.Cause)
}

func (e *PassError) Unwrap() error {
	return e.Cause
}

// IsDestroyed reports whether err stems from a chart torn down mid-pass.
// Callers typically suppress these instead of showing them to users.
func IsDestroyed(err error) bool {
	return errors.Is(err, chart.ErrDestroyed)
}
