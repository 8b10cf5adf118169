package rangeiter

import (
	"context"
	"golang.org/x/sync/semaphore"
	"sync"
)

// FlowControl bounds how far a producer may run ahead of the consumer's
// acknowledgements. Every row takes one credit; an acknowledgement of n
// rows returns n credits.
type FlowControl struct {
	sem    *semaphore.Weighted
	window int64

	mu          sync.Mutex
	outstanding int64
}

// NewFlowControl creates flow control for the acknowledgement batch size
// ack. The producer may run up to 2*ack rows ahead. It returns nil when ack
// is not positive, which disables flow control.
func NewFlowControl(ack int64) *FlowControl {
	if ack <= 0 {
		return nil
	}
	window := 2 * ack
	return &FlowControl{
		sem:    semaphore.NewWeighted(window),
		window: window,
	}
}

// Window returns the number of rows the producer may run ahead, zero
// without flow control
func (f *FlowControl) Window() int64 {
	if f == nil {
		return 0
	}
	return f.window
}

// Outstanding returns the number of unacknowledged rows
func (f *FlowControl) Outstanding() int64 {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

// Acquire takes the credit for one row, blocking until the consumer
// acknowledged enough rows or ctx is done.
func (f *FlowControl) Acquire(ctx context.Context) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	f.mu.Lock()
	f.outstanding++
	f.mu.Unlock()
	return nil
}

// Ack returns the credits of n acknowledged rows. Acknowledging more rows
// than are outstanding is not an error.
func (f *FlowControl) Ack(n int64) {
	f.mu.Lock()
	if n > f.outstanding {
		n = f.outstanding
	}
	f.outstanding -= n
	f.mu.Unlock()

	if n > 0 {
		f.sem.Release(n)
	}
}
