package meter

import (
	"context"
	"time"
)

// DefaultPollInterval is the pause between a response and the next request.
const DefaultPollInterval = 500 * time.Millisecond

// PollLoop keeps one request in flight. Start sends the first request;
// after that, every Arm schedules exactly one more. It does not run a
// goroutine: the owner selects on C and calls Fire, so all writes happen
// on the owner's goroutine.
type PollLoop struct {
	clock    Clock
	interval time.Duration
	write    WriteFunc
	timer    Timer
	requests uint64
}

func NewPollLoop(clock Clock, interval time.Duration) *PollLoop {
	if clock == nil {
		clock = RealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &PollLoop{clock: clock, interval: interval}
}

// Start sends the first request. A write error is returned as is;
// retrying is the caller's decision.
func (p *PollLoop) Start(ctx context.Context, write WriteFunc) error {
	p.Stop()
	p.write = write

	return p.request(ctx)
}

// Arm schedules the next request, replacing any pending one.
func (p *PollLoop) Arm() {
	if p.write == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.clock.NewTimer(p.interval)
}

// C fires when the scheduled request is due. It is nil while nothing is
// scheduled, which blocks forever in a select.
func (p *PollLoop) C() <-chan time.Time {
	if p.timer == nil {
		return nil
	}

	return p.timer.C()
}

// Fire sends the scheduled request.
func (p *PollLoop) Fire(ctx context.Context) error {
	p.timer = nil

	return p.request(ctx)
}

// Stop cancels the pending request and detaches the writer. Safe to call
// any number of times.
func (p *PollLoop) Stop() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.write = nil
}

// Armed reports whether a request is scheduled.
func (p *PollLoop) Armed() bool {
	return p.timer != nil
}

// Requests returns how many requests have been written.
func (p *PollLoop) Requests() uint64 {
	return p.requests
}

func (p *PollLoop) request(ctx context.Context) error {
	if p.write == nil {
		return nil
	}
	if err := p.write(ctx, []byte{CmdRequestSnapshot}); err != nil {
		return err
	}
	p.requests++

	return nil
}
