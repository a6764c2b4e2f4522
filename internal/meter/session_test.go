package meter

import (
	"context"
	"errors"
	"math"
	"testing"

	apperrors "codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	clock     *manualClock
	transport *fakeTransport
	observer  *recordingObserver
	session   *Session
}

func newSessionFixture(conns ...*fakeConn) *sessionFixture {
	f := &sessionFixture{
		clock:     newManualClock(),
		transport: &fakeTransport{conns: conns},
		observer:  newRecordingObserver(),
	}
	f.session = NewSession(f.transport,
		WithClock(f.clock),
		WithObserver(f.observer),
		WithLogger(logger.Nop()),
	)

	return f
}

func (f *sessionFixture) run(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	return done
}

func telemetryFrame() Frame {
	b := &frameBuilder{}
	b.u16(offModel, 0x0963).u16(offVoltage, 1200).u16(offCurrent, 500).u16(offGroup, 0)

	return b.f
}

func TestSessionEndToEnd(t *testing.T) {
	conn := newFakeConn()
	f := newSessionFixture(conn)
	done := f.run(context.Background())

	waitSignal(t, conn.wrote, "initial request")
	assert.Equal(t, []byte{CmdRequestSnapshot}, conn.writes[0])
	assert.Equal(t, StateConnected, f.session.State())

	for _, c := range deviceChunks(telemetryFrame()) {
		conn.chunks <- c
	}

	d := waitSnapshot(t, f.observer)
	assert.Equal(t, ModelUM24C, d.snap.Model)
	assert.Equal(t, uint32(12000), d.snap.Voltage)
	assert.Equal(t, uint32(500), d.snap.Current)
	assert.Equal(t, f.clock.Now(), d.snap.ReceivedAt)

	require.Len(t, d.voltage, HistorySize)
	assert.Equal(t, 12.0, d.voltage[0])
	assert.Equal(t, 0.5, d.current[0])
	assert.True(t, math.IsNaN(d.voltage[1]), "exactly one push")
	assert.True(t, math.IsNaN(d.current[1]), "exactly one push")

	// The next request waits for the re-arm timer.
	require.Eventually(t, func() bool { return f.clock.pending() == 1 }, waitTimeout, tick)
	assert.Equal(t, 1, conn.writeCount())
	f.clock.fire()
	waitSignal(t, conn.wrote, "re-armed request")
	assert.Equal(t, 2, conn.writeCount())

	f.session.Disconnect()
	require.NoError(t, waitErr(t, done))

	assert.Equal(t, StateDisconnected, f.session.State())
	assert.True(t, conn.isClosed())
	assert.False(t, f.session.poll.Armed())
	assert.Equal(t, uint64(1), f.session.Frames())
	assert.Equal(t,
		[]State{StateConnecting, StateConnected, StateDisconnected},
		f.observer.seen())
}

func TestSessionRearmsAfterDiscardedCycle(t *testing.T) {
	conn := newFakeConn()
	f := newSessionFixture(conn)
	done := f.run(context.Background())
	waitSignal(t, conn.wrote, "initial request")

	conn.chunks <- make([]byte, 20)
	conn.chunks <- make([]byte, ChunkSize)

	require.Eventually(t, func() bool { return f.clock.pending() == 1 }, waitTimeout, tick)
	assert.Equal(t, uint64(1), f.session.Dropped())
	assert.Zero(t, f.session.Frames())

	f.session.Disconnect()
	require.NoError(t, waitErr(t, done))
	assert.Zero(t, f.clock.pending(), "timer left armed after teardown")
}

func TestSessionConnectFailure(t *testing.T) {
	f := newSessionFixture()
	f.transport.err = errors.New("no device advertising 0xFFE0")

	err := f.session.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, ErrConnectFailed, apperrors.CodeOf(err))
	assert.Equal(t, StateDisconnected, f.session.State())
	assert.Equal(t, []State{StateConnecting, StateDisconnected}, f.observer.seen())
	assert.NotContains(t, f.observer.seen(), StateConnected)
}

func TestSessionCancelWhileConnecting(t *testing.T) {
	f := newSessionFixture()
	f.transport.block = true
	done := f.run(context.Background())

	require.Eventually(t, func() bool { return f.session.State() == StateConnecting }, waitTimeout, tick)
	f.session.Disconnect()

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, StateDisconnected, f.session.State())
}

func TestSessionInitialWriteFailure(t *testing.T) {
	conn := newFakeConn()
	conn.writeErr = errors.New("characteristic not writable")
	f := newSessionFixture(conn)

	err := f.session.Run(context.Background())

	assert.Equal(t, ErrWriteFailed, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, conn.writeErr)
	assert.Equal(t, StateDisconnected, f.session.State())
	assert.True(t, conn.isClosed())
}

func TestSessionPollWriteFailure(t *testing.T) {
	conn := newFakeConn()
	f := newSessionFixture(conn)
	done := f.run(context.Background())
	waitSignal(t, conn.wrote, "initial request")

	for _, c := range deviceChunks(telemetryFrame()) {
		conn.chunks <- c
	}
	waitSnapshot(t, f.observer)
	require.Eventually(t, func() bool { return f.clock.pending() == 1 }, waitTimeout, tick)

	conn.mu.Lock()
	conn.writeErr = errors.New("link dropped")
	conn.mu.Unlock()
	f.clock.fire()

	err := waitErr(t, done)
	assert.Equal(t, ErrWriteFailed, apperrors.CodeOf(err))
	assert.Equal(t, StateDisconnected, f.session.State())
	assert.False(t, f.session.poll.Armed())
}

func TestSessionCancelAtConnectIsNotAWriteFailure(t *testing.T) {
	conn := newFakeConn()
	f := newSessionFixture(conn)
	f.transport.onConnect = f.session.Disconnect

	err := f.session.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, conn.writeCount())
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateDisconnected, f.session.State())
}

func TestSessionCancelDuringPollWriteIsNotAWriteFailure(t *testing.T) {
	conn := newFakeConn()
	f := newSessionFixture(conn)
	conn.beforeWrite = func(n int) {
		if n == 1 {
			f.session.Disconnect()
		}
	}
	done := f.run(context.Background())
	waitSignal(t, conn.wrote, "initial request")

	for _, c := range deviceChunks(telemetryFrame()) {
		conn.chunks <- c
	}
	waitSnapshot(t, f.observer)
	require.Eventually(t, func() bool { return f.clock.pending() == 1 }, waitTimeout, tick)
	f.clock.fire()

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, 1, conn.writeCount())
	assert.Equal(t, StateDisconnected, f.session.State())
}

func TestSessionLinkErrors(t *testing.T) {
	t.Run("reported error", func(t *testing.T) {
		conn := newFakeConn()
		f := newSessionFixture(conn)
		done := f.run(context.Background())
		waitSignal(t, conn.wrote, "initial request")

		conn.errs <- errors.New("disconnected by peer")

		err := waitErr(t, done)
		assert.Equal(t, ErrLinkLost, apperrors.CodeOf(err))
		assert.Equal(t, StateDisconnected, f.session.State())
	})

	t.Run("closed stream", func(t *testing.T) {
		conn := newFakeConn()
		f := newSessionFixture(conn)
		done := f.run(context.Background())
		waitSignal(t, conn.wrote, "initial request")

		close(conn.chunks)

		err := waitErr(t, done)
		assert.Equal(t, ErrLinkLost, apperrors.CodeOf(err))
		assert.True(t, conn.isClosed())
	})
}

func TestSessionRejectsConcurrentRun(t *testing.T) {
	conn := newFakeConn()
	f := newSessionFixture(conn)
	done := f.run(context.Background())
	waitSignal(t, conn.wrote, "initial request")

	err := f.session.Run(context.Background())
	assert.Equal(t, ErrSessionActive, apperrors.CodeOf(err))

	f.session.Disconnect()
	require.NoError(t, waitErr(t, done))
}

func TestSessionReconnectStartsFreshHistory(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	f := newSessionFixture(first, second)

	done := f.run(context.Background())
	waitSignal(t, first.wrote, "first session request")
	for _, c := range deviceChunks(telemetryFrame()) {
		first.chunks <- c
	}
	waitSnapshot(t, f.observer)
	f.session.Disconnect()
	require.NoError(t, waitErr(t, done))

	// Disconnect on an idle session is harmless.
	f.session.Disconnect()

	done = f.run(context.Background())
	waitSignal(t, second.wrote, "second session request")
	for _, c := range deviceChunks(telemetryFrame()) {
		second.chunks <- c
	}
	d := waitSnapshot(t, f.observer)
	assert.Equal(t, 12.0, d.voltage[0])
	assert.True(t, math.IsNaN(d.voltage[1]))

	f.session.Disconnect()
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, uint64(2), f.session.Frames())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "invalid", State(9).String())
}
