// Package transport holds what the BLE and serial links have in common:
// a Link that turns driver callbacks into the channel-based meter.Conn.
package transport

import (
	"context"
	"sync"

	"codeberg.org/mutker/umctl/internal/errors"
)

const chunkBacklog = 64

// Link implements meter.Conn on top of a driver's write and close
// functions. Drivers push notifications with Deliver and failures with
// Fail.
type Link struct {
	chunks chan []byte
	errs   chan error
	done   chan struct{}

	write   func([]byte) error
	closeFn func() error

	closeOnce sync.Once
	closeErr  error

	// endMu orders Deliver against End so chunks is never sent on after
	// it is closed.
	endMu sync.RWMutex
	ended bool
}

func NewLink(write func([]byte) error, closeFn func() error) *Link {
	return &Link{
		chunks:  make(chan []byte, chunkBacklog),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		write:   write,
		closeFn: closeFn,
	}
}

func (l *Link) Chunks() <-chan []byte { return l.chunks }

func (l *Link) Errors() <-chan error { return l.errs }

// Write sends b unless the link is closed or ctx is done.
func (l *Link) Write(ctx context.Context, b []byte) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrWriteFailed, ctx.Err())
	case <-l.done:
		return errFactory.New(ErrLinkClosed)
	default:
	}

	if err := l.write(b); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// Deliver queues a copy of b, keeping arrival order. It blocks while the
// backlog is full and returns false once the link is closed.
func (l *Link) Deliver(b []byte) bool {
	chunk := append([]byte(nil), b...)

	l.endMu.RLock()
	defer l.endMu.RUnlock()
	if l.ended {
		return false
	}

	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.chunks <- chunk:
		return true
	case <-l.done:
		return false
	}
}

// Fail reports an asynchronous link failure. Only the first one is kept.
func (l *Link) Fail(err error) {
	if err == nil {
		return
	}
	select {
	case l.errs <- err:
	default:
	}
}

// End marks the chunk stream as finished. It may be called from any
// goroutine, more than once. A Deliver blocked on a full backlog holds
// End off until the reader drains it or the link is closed.
func (l *Link) End() {
	l.endMu.Lock()
	defer l.endMu.Unlock()

	if !l.ended {
		l.ended = true
		close(l.chunks)
	}
}

// Done is closed once Close has been called.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Close releases the driver. Later calls return the first result.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		if l.closeFn != nil {
			l.closeErr = l.closeFn()
		}
	})

	return l.closeErr
}
