package batch

import "context"

// Status is the settled state of one batch item.
type Status string

const (
	// StatusFulfilled marks an item whose Run returned without error.
	StatusFulfilled Status = "fulfilled"

	// StatusRejected marks an item whose Run failed.
	StatusRejected Status = "rejected"
)

// Item is one independent operation submitted to a batch.
type Item[T any] struct {
	// Label is an optional caller-supplied correlation tag copied to the Outcome.
	Label string

	// Run performs the operation. The context is cancelled when the batch
	// aborts under StopOnError or when the caller's context is cancelled.
	Run func(ctx context.Context) (T, error)
}

// Outcome is the settled result of one item, stored at the item's
// submission index.
type Outcome[T any] struct {
	Index  int
	Label  string
	Status Status
	Value  T
	Err    error
}

// Fulfilled reports whether the item succeeded.
func (o Outcome[T]) Fulfilled() bool {
	return o.Status == StatusFulfilled
}

// Split separates fulfilled values from rejected outcomes, preserving order.
func Split[T any](outcomes []Outcome[T]) (values []T, rejected []Outcome[T]) {
	for _, o := range outcomes {
		if o.Fulfilled() {
			values = append(values, o.Value)
		} else {
			rejected = append(rejected, o)
		}
	}
	return values, rejected
}
