package meter

import "context"

// Transport opens a link to a meter. Implementations live under
// internal/transport.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is an established link. Chunks must be delivered in arrival
// order; the assembler has no way to detect reordering.
type Conn interface {
	// Chunks is closed when the link goes away.
	Chunks() <-chan []byte
	// Errors carries asynchronous link failures. May be nil.
	Errors() <-chan error
	Write(ctx context.Context, b []byte) error
	Close() error
}

// WriteFunc sends raw bytes to the meter.
type WriteFunc func(ctx context.Context, b []byte) error

// Observer receives everything the presentation layer shows. Calls come
// from the session goroutine and must not block for long.
type Observer interface {
	StateChanged(state State)
	SnapshotDecoded(snap Snapshot, voltage, current []float64)
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) StateChanged(state State) {
	for _, obs := range o {
		obs.StateChanged(state)
	}
}

func (o Observers) SnapshotDecoded(snap Snapshot, voltage, current []float64) {
	for _, obs := range o {
		obs.SnapshotDecoded(snap, voltage, current)
	}
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)                          {}
func (nopObserver) SnapshotDecoded(Snapshot, []float64, []float64) {}
