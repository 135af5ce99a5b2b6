package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Pause blocks every mutation except refund claims. Admin only.
func (l *Ledger) Pause(ctx context.Context, caller string) error {
	_, err := l.run(ctx, OpPause, func(at time.Time) (*mutation, error) {
		if err := l.requireAdmin(OpPause, caller); err != nil {
			return nil, err
		}
		return l.planPause(caller, true, at)
	})
	if err == nil {
		l.logger.Warn("ledger paused", "admin", caller)
	}
	return err
}

// Unpause lifts a pause. Admin only.
func (l *Ledger) Unpause(ctx context.Context, caller string) error {
	_, err := l.run(ctx, OpUnpause, func(at time.Time) (*mutation, error) {
		if err := l.requireAdmin(OpUnpause, caller); err != nil {
			return nil, err
		}
		return l.planPause(caller, false, at)
	})
	if err == nil {
		l.logger.Info("ledger unpaused", "admin", caller)
	}
	return err
}

// UpdateMaxStake changes the per-rating stake ceiling within the configured
// bounds. Existing ratings are unaffected. Admin only.
func (l *Ledger) UpdateMaxStake(ctx context.Context, caller string, ceiling uint64) error {
	_, err := l.run(ctx, OpUpdateMaxStake, func(at time.Time) (*mutation, error) {
		if err := l.requireAdmin(OpUpdateMaxStake, caller); err != nil {
			return nil, err
		}
		return l.planMaxStake(caller, ceiling, at)
	})
	if err == nil {
		l.logger.Info("max stake updated", "admin", caller, "max_stake", ceiling)
	}
	return err
}

func (l *Ledger) planPause(caller string, pause bool, at time.Time) (*mutation, error) {
	op, kind := OpPause, EventPaused
	if !pause {
		op, kind = OpUnpause, EventUnpaused
	}
	switch {
	case pause && l.paused:
		return nil, fail(KindState, string(op), ErrPaused)
	case !pause && !l.paused:
		return nil, fail(KindState, string(op), ErrNotPaused)
	}

	return &mutation{
		entry:  Entry{ID: uuid.New(), Op: op, Caller: caller, At: at},
		apply:  func() { l.paused = pause },
		events: []Event{{ID: uuid.New(), Kind: kind, Caller: caller, Timestamp: at}},
	}, nil
}

func (l *Ledger) planMaxStake(caller string, ceiling uint64, at time.Time) (*mutation, error) {
	const op = OpUpdateMaxStake
	if l.paused {
		return nil, fail(KindState, string(op), ErrPaused)
	}
	if !l.replaying && (ceiling < l.params.MinStakeCeiling || ceiling > l.params.MaxStakeCeiling) {
		return nil, fail(KindValidation, string(op), ErrCeilingOutOfRange)
	}

	return &mutation{
		entry: Entry{ID: uuid.New(), Op: op, Caller: caller, At: at, MaxStake: ceiling},
		apply: func() { l.params.MaxStake = ceiling },
		events: []Event{{
			ID:        uuid.New(),
			Kind:      EventMaxStakeUpdated,
			Caller:    caller,
			MaxStake:  ceiling,
			Timestamp: at,
		}},
	}, nil
}
