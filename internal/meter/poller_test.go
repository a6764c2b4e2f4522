package meter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writeLog struct {
	writes [][]byte
	err    error
}

func (w *writeLog) write(_ context.Context, b []byte) error {
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, append([]byte(nil), b...))
	return nil
}

func TestPollLoopStartWritesImmediately(t *testing.T) {
	clock := newManualClock()
	p := NewPollLoop(clock, 0)
	w := &writeLog{}

	require.NoError(t, p.Start(context.Background(), w.write))

	assert.Equal(t, [][]byte{{0xF0}}, w.writes)
	assert.False(t, p.Armed())
	assert.Nil(t, p.C())
	assert.Equal(t, uint64(1), p.Requests())
}

func TestPollLoopArmAndFire(t *testing.T) {
	clock := newManualClock()
	p := NewPollLoop(clock, DefaultPollInterval)
	w := &writeLog{}
	require.NoError(t, p.Start(context.Background(), w.write))

	p.Arm()
	require.True(t, p.Armed())
	require.Len(t, clock.timers, 1)
	assert.Equal(t, DefaultPollInterval, clock.timers[0].d)

	clock.fire()
	<-p.C()
	require.NoError(t, p.Fire(context.Background()))

	assert.Len(t, w.writes, 2)
	assert.False(t, p.Armed())
}

func TestPollLoopArmReplacesPending(t *testing.T) {
	clock := newManualClock()
	p := NewPollLoop(clock, 0)
	require.NoError(t, p.Start(context.Background(), (&writeLog{}).write))

	p.Arm()
	p.Arm()

	assert.Equal(t, 1, clock.pending())
	assert.True(t, clock.timers[0].stopped)
}

func TestPollLoopStopIsIdempotent(t *testing.T) {
	clock := newManualClock()
	p := NewPollLoop(clock, 0)
	w := &writeLog{}
	require.NoError(t, p.Start(context.Background(), w.write))
	p.Arm()

	p.Stop()
	p.Stop()

	assert.False(t, p.Armed())
	assert.Zero(t, clock.pending())

	// A stopped loop has no writer: arming and firing do nothing.
	p.Arm()
	assert.False(t, p.Armed())
	require.NoError(t, p.Fire(context.Background()))
	assert.Len(t, w.writes, 1)
}

func TestPollLoopWriteErrorPropagates(t *testing.T) {
	boom := errors.New("gatt write failed")
	p := NewPollLoop(newManualClock(), 0)

	err := p.Start(context.Background(), (&writeLog{err: boom}).write)

	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.Requests())
}
