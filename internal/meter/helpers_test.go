package meter

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 2 * time.Second
	tick        = 5 * time.Millisecond
)

// frameBuilder writes big-endian fields at absolute offsets.
type frameBuilder struct {
	f Frame
}

func (b *frameBuilder) u16(off int, v uint16) *frameBuilder {
	binary.BigEndian.PutUint16(b.f[off:], v)
	return b
}

func (b *frameBuilder) u32(off int, v uint32) *frameBuilder {
	binary.BigEndian.PutUint32(b.f[off:], v)
	return b
}

// deviceChunks splits a frame the way the BLE link delivers it:
// six 20-byte notifications and a closing 10-byte one.
func deviceChunks(f Frame) [][]byte {
	var out [][]byte
	for off := 0; off < FrameSize-ChunkSize; off += 20 {
		out = append(out, append([]byte(nil), f[off:off+20]...))
	}

	return append(out, append([]byte(nil), f[FrameSize-ChunkSize:]...))
}

type manualTimer struct {
	mu      *sync.Mutex
	c       chan time.Time
	d       time.Duration
	stopped bool
}

func (t *manualTimer) C() <-chan time.Time { return t.c }

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && len(t.c) == 0
	t.stopped = true
	return wasActive
}

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{mu: &c.mu, c: make(chan time.Time, 1), d: d}
	c.timers = append(c.timers, t)
	return t
}

// pending counts timers that are neither stopped nor fired.
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && len(t.c) == 0 {
			n++
		}
	}
	return n
}

// fire advances the clock by each live timer's duration and fires it.
func (c *manualClock) fire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if !t.stopped && len(t.c) == 0 {
			c.now = c.now.Add(t.d)
			t.stopped = true
			t.c <- c.now
		}
	}
}

type fakeConn struct {
	chunks chan []byte
	errs   chan error

	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool
	wrote    chan struct{}

	// beforeWrite runs ahead of every write with the number of writes
	// already accepted.
	beforeWrite func(n int)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		chunks: make(chan []byte, 64),
		errs:   make(chan error, 1),
		wrote:  make(chan struct{}, 64),
	}
}

func (c *fakeConn) Chunks() <-chan []byte { return c.chunks }
func (c *fakeConn) Errors() <-chan error  { return c.errs }

func (c *fakeConn) Write(ctx context.Context, b []byte) error {
	if c.beforeWrite != nil {
		c.beforeWrite(c.writeCount())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	c.wrote <- struct{}{}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	// block makes Connect wait for cancellation.
	block bool
	// onConnect runs just before a connection is handed out.
	onConnect func()
}

func (t *fakeTransport) Connect(ctx context.Context) (Conn, error) {
	if t.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}

	t.mu.Lock()
	c := t.conns[0]
	t.conns = t.conns[1:]
	t.mu.Unlock()

	if t.onConnect != nil {
		t.onConnect()
	}
	return c, nil
}

type decoded struct {
	snap    Snapshot
	voltage []float64
	current []float64
}

type recordingObserver struct {
	mu     sync.Mutex
	states []State
	snaps  chan decoded
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{snaps: make(chan decoded, 16)}
}

func (o *recordingObserver) StateChanged(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) SnapshotDecoded(snap Snapshot, voltage, current []float64) {
	o.snaps <- decoded{snap: snap, voltage: voltage, current: current}
}

func (o *recordingObserver) seen() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for "+what)
	}
}

func waitSnapshot(t *testing.T, o *recordingObserver) decoded {
	t.Helper()
	select {
	case d := <-o.snaps:
		return d
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for snapshot")
		return decoded{}
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for Run to return")
		return nil
	}
}
