package meter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
)

// State is the connection lifecycle of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "invalid"
	}
}

// Session drives one meter: it connects, polls, assembles and decodes
// frames, and keeps the chart history. Pipeline state is only touched
// from the goroutine running Run.
type Session struct {
	transport Transport
	observer  Observer
	clock     Clock
	poll      *PollLoop
	log       logger.Logger

	mu     sync.RWMutex
	state  State
	cancel context.CancelFunc

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Session.
type Option func(*Session)

// WithObserver sets the receiver of state changes and snapshots.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.poll.interval = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		transport: t,
		observer:  nopObserver{},
		clock:     RealClock(),
		log:       logger.New().With("session"),
		state:     StateDisconnected,
	}
	s.poll = NewPollLoop(s.clock, DefaultPollInterval)

	for _, opt := range opts {
		opt(s)
	}
	s.poll.clock = s.clock

	return s
}

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Frames returns the number of frames decoded since creation.
func (s *Session) Frames() uint64 {
	return s.frames.Load()
}

// Dropped returns the number of notification cycles discarded because
// they did not add up to a frame.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Run connects and serves the link until it fails or ctx is cancelled.
// It is the only way out of StateDisconnected; there is no automatic
// reconnect. Cancellation returns nil, every other exit returns the cause.
func (s *Session) Run(ctx context.Context) error {
	errFactory := errors.New()

	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return errFactory.WithData(ErrSessionActive, state.String())
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateConnecting
	s.mu.Unlock()
	defer cancel()

	s.notify(StateDisconnected, StateConnecting)

	conn, err := s.transport.Connect(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			s.log.Debug().Err(err).Msg("Connect aborted")
			return nil
		}
		return errFactory.Wrap(ErrConnectFailed, err)
	}

	err = s.serve(ctx, conn)
	s.teardown(conn)

	return err
}

// Disconnect tears down a running session. It is a no-op when idle.
func (s *Session) Disconnect() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Session) serve(ctx context.Context, conn Conn) error {
	errFactory := errors.New()

	asm := NewAssembler()
	history := NewHistory()

	s.setState(StateConnected)

	if err := s.poll.Start(ctx, conn.Write); err != nil {
		return s.writeFailed(ctx, err)
	}

	chunks := conn.Chunks()
	linkErrs := conn.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-linkErrs:
			if !ok {
				linkErrs = nil
				continue
			}
			if err != nil {
				return errFactory.Wrap(ErrLinkLost, err)
			}

		case chunk, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errFactory.WithMessage(ErrLinkLost, "link closed by peer")
			}
			s.handleChunk(chunk, asm, history)

		case <-s.poll.C():
			if err := s.poll.Fire(ctx); err != nil {
				return s.writeFailed(ctx, err)
			}
		}
	}
}

// writeFailed maps a request error to the session result. A write cut
// short by cancellation is a normal shutdown.
func (s *Session) writeFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.log.Debug().Err(err).Msg("Request aborted by shutdown")
		return nil
	}

	return errors.New().Wrap(ErrWriteFailed, err)
}

func (s *Session) handleChunk(chunk []byte, asm *Assembler, history *History) {
	buffered := asm.Buffered()
	frame, boundary := asm.Feed(chunk)
	if !boundary {
		return
	}

	if frame == nil {
		s.dropped.Add(1)
		s.log.Debug().
			Int("bytes", buffered+len(chunk)).
			Int("expected", FrameSize).
			Msg("Discarding mis-sized notification cycle")
	} else {
		snap := Decode(*frame)
		snap.ReceivedAt = s.clock.Now()
		history.Push(snap.Volts(), snap.Amps())
		s.frames.Add(1)
		s.observer.SnapshotDecoded(snap, history.Voltage(), history.Current())
	}

	// Re-armed on every cycle, framed or not.
	s.poll.Arm()
}

func (s *Session) teardown(conn Conn) {
	s.poll.Stop()

	if err := conn.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close link")
	}

	s.setState(StateDisconnected)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	if state == StateDisconnected {
		s.cancel = nil
	}
	s.mu.Unlock()

	s.notify(prev, state)
}

func (s *Session) notify(prev, state State) {
	if prev == state {
		return
	}
	s.log.Debug().Str("from", prev.String()).Str("to", state.String()).Msg("Session state changed")
	s.observer.StateChanged(state)
}
