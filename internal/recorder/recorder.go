package recorder

import (
	"context"
	"sync"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
	"codeberg.org/mutker/umctl/internal/meter"
	"github.com/google/uuid"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If recording is disabled, return a no-op collector
	if !cfg.Enabled {
		log.Debug().Msg("Recording disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create readings repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Int("batch_size", cfg.BatchSize).
		Msg("Recorder initialized")

	return &service{repo: repo, cfg: cfg}, nil
}

func (s *service) Record(ctx context.Context, reading *Reading) error {
	errFactory := errors.New()

	if reading == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(reading); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}

func (*noopCollector) Record(_ context.Context, _ *Reading) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}

// Observer feeds a Collector from a meter session. Each connection gets
// a fresh session ID.
type Observer struct {
	ctx       context.Context
	collector Collector
	log       logger.Logger
	newID     func() uuid.UUID

	mu        sync.Mutex
	sessionID uuid.UUID
}

func NewObserver(ctx context.Context, c Collector, log logger.Logger) *Observer {
	return &Observer{
		ctx:       ctx,
		collector: c,
		log:       log,
		newID:     uuid.New,
	}
}

func (o *Observer) StateChanged(state meter.State) {
	if state != meter.StateConnected {
		return
	}

	o.mu.Lock()
	o.sessionID = o.newID()
	id := o.sessionID
	o.mu.Unlock()

	o.log.Info().Str("session_id", id.String()).Msg("Recording session")
}

func (o *Observer) SnapshotDecoded(snap meter.Snapshot, _, _ []float64) {
	o.mu.Lock()
	id := o.sessionID
	o.mu.Unlock()

	if err := o.collector.Record(o.ctx, &Reading{SessionID: id, Snapshot: snap}); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			o.log.ErrorWithCode(appErr).Msg("Failed to record reading")
			return
		}
		o.log.Error().Err(err).Msg("Failed to record reading")
	}
}

// SessionID returns the ID of the current or last connection.
func (o *Observer) SessionID() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.sessionID
}
