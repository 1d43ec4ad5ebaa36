// Package sink persists readings to the time-series store. The scheduler
// only sees the Sink interface; sink failures are logged and never fed
// back into device state.
package sink

import (
	"context"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// Sink receives one device's readings per poll cycle. Each Write call is
// atomic per device and cycle.
type Sink interface {
	Write(ctx context.Context, readings []types.Reading) error
	Close()
}
