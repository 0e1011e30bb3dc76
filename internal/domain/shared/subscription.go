package shared

// Subscription is a live sequence of full-state values.
//
// Updates delivers values in publish order, starting with the most recent
// value at subscription time. Errors is a side channel for failures of the
// producing source; the last good value stays current when an error arrives.
// Both channels are closed once the subscription ends.
type Subscription[T any] interface {
	Updates() <-chan T
	Errors() <-chan error
	// Done is closed when the subscription ends, by Close or by the producer.
	Done() <-chan struct{}
	// Close releases the subscription. It is safe to call more than once.
	Close()
}
