package isotp

import (
	"context"
	"time"
)

// Deadlines bundles the six named timing budgets into a per-Session value.
// All default to one second.
type Deadlines struct {
	NAs time.Duration // bus-send completion on sender
	NAr time.Duration // bus-send completion on receiver (for FCs)
	NBs time.Duration // sender waiting for an FC after FF or a block of CFs
	NBr time.Duration // receiver deadline to issue an FC after FF or a block
	NCs time.Duration // sender deadline to emit the next CF after being cleared
	NCr time.Duration // receiver deadline between consecutive CFs of a block
}

// DefaultDeadlines returns a conservative default of 1s for every deadline.
func DefaultDeadlines() Deadlines {
	const d = time.Second
	return Deadlines{NAs: d, NAr: d, NBs: d, NBr: d, NCs: d, NCr: d}
}

// withDeadline derives a child context bounded by d, used at every
// suspension point of the sender and receiver state machines.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

func isDeadlineExceeded(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
