package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Slash invalidates a rating. Its contribution leaves the aggregates but the
// rating stays in history for audit. Admin only.
func (l *Ledger) Slash(ctx context.Context, caller string, key EntityKey, index uint64) error {
	m, err := l.run(ctx, OpSlash, func(at time.Time) (*mutation, error) {
		if err := l.requireAdmin(OpSlash, caller); err != nil {
			return nil, err
		}
		return l.planSlash(caller, key, index, at)
	})
	if err != nil {
		return err
	}
	l.logger.Info("rating slashed",
		"entity", key,
		"index", index,
		"admin", caller,
		"trust_score", m.entry.TrustScore,
	)
	return nil
}

// MarkRefundable makes slashed ratings claimable by their raters. All indices
// are checked before any is marked. Admin only.
func (l *Ledger) MarkRefundable(ctx context.Context, caller string, key EntityKey, indices []uint64) error {
	_, err := l.run(ctx, OpMarkRefundable, func(at time.Time) (*mutation, error) {
		if err := l.requireAdmin(OpMarkRefundable, caller); err != nil {
			return nil, err
		}
		return l.planMarkRefundable(caller, key, indices, at)
	})
	if err != nil {
		return err
	}
	l.logger.Info("refunds marked", "entity", key, "indices", indices, "admin", caller)
	return nil
}

// ClaimRefund pays a marked refund to the rating's original rater and
// returns the amount transferred. Claims stay available while paused.
//
// The claim is journaled and applied before the escrow transfer, which runs
// without the ledger lock. A second claim of the same rating fails with
// ErrAlreadyClaimed from that point on. If the transfer fails the claim is
// reversed by a compensating journal entry.
func (l *Ledger) ClaimRefund(ctx context.Context, caller string, key EntityKey, index uint64) (uint64, error) {
	const op = OpClaimRefund
	m, err := l.commit(ctx, op, func(at time.Time) (*mutation, error) {
		if l.escrow == nil {
			return nil, fail(KindTransfer, string(op), fmt.Errorf("%w: no escrow configured", ErrTransferFailed))
		}
		return l.planClaim(caller, key, index, at)
	}, false)
	if err != nil {
		return 0, l.observe(op, err)
	}

	amount := m.entry.Stake
	transferCtx := context.WithValue(ctx, transferKey{}, struct{}{})
	if err := l.escrow.Transfer(transferCtx, caller, amount, RefundMemo(key, index)); err != nil {
		return 0, l.observe(op, l.reverseClaim(ctx, caller, key, index, amount, err))
	}

	l.publish(m)
	l.observe(op, nil)
	l.logger.Info("refund claimed",
		"entity", key,
		"index", index,
		"rater", caller,
		"amount", amount,
	)
	return amount, nil
}

// RefundMemo is the transfer memo of a refund. It is unique per rating and
// serves as the settlement idempotency key.
func RefundMemo(key EntityKey, index uint64) string {
	return fmt.Sprintf("refund:%s:%d", key, index)
}

// reverseClaim undoes a committed claim whose transfer failed so the rater
// can claim again. The reversal is journaled even if ctx was cancelled. When
// it cannot be journaled the claim stays recorded and needs manual
// settlement.
func (l *Ledger) reverseClaim(ctx context.Context, caller string, key EntityKey, index, amount uint64, cause error) error {
	transferErr := fail(KindTransfer, string(OpClaimRefund), fmt.Errorf("%w: %w", ErrTransferFailed, cause))
	_, err := l.commit(context.WithoutCancel(ctx), OpRefundReversed, func(at time.Time) (*mutation, error) {
		return l.planReverseClaim(caller, key, index, amount, at)
	}, false)
	if err != nil {
		l.logger.Error("refund transfer failed and claim could not be reversed",
			"entity", key,
			"index", index,
			"rater", caller,
			"amount", amount,
			"transfer_error", cause,
			"error", err,
		)
		return transferErr
	}
	l.logger.Warn("refund transfer failed, claim reversed",
		"entity", key,
		"index", index,
		"rater", caller,
		"error", cause,
	)
	return transferErr
}

func (l *Ledger) rating(op Op, key EntityKey, index uint64) (*entityState, Rating, error) {
	st := l.entity(key)
	if st == nil || index >= uint64(len(st.ratings)) {
		return nil, Rating{}, fail(KindValidation, string(op), ErrIndexOutOfRange)
	}
	return st, st.ratings[index], nil
}

func (l *Ledger) planSlash(caller string, key EntityKey, index uint64, at time.Time) (*mutation, error) {
	const op = OpSlash
	if l.paused {
		return nil, fail(KindState, string(op), ErrPaused)
	}
	st, r, err := l.rating(op, key, index)
	if err != nil {
		return nil, err
	}
	if r.Slashed {
		return nil, fail(KindState, string(op), ErrAlreadySlashed)
	}

	stats, err := st.stats.remove(contribution{
		score:  uint64(r.Score),
		weight: r.Weight,
		active: true,
	})
	if err != nil {
		return nil, fail(KindState, string(op), err)
	}
	trustScore := stats.TrustScore()
	r.Slashed = true

	ev := entityEvent(EventRatingSlashed, key, caller, at).withIndex(index).withTrustScore(trustScore)
	ev.Stake = r.Stake

	return &mutation{
		entry: Entry{
			ID:         uuid.New(),
			Op:         op,
			Entity:     key,
			Caller:     caller,
			At:         at,
			Index:      index,
			Stats:      stats,
			TrustScore: trustScore,
		},
		apply: func() {
			st.ratings[index] = r
			st.stats = stats
			st.score = trustScore
		},
		events: []Event{ev},
	}, nil
}

func (l *Ledger) planMarkRefundable(caller string, key EntityKey, indices []uint64, at time.Time) (*mutation, error) {
	const op = OpMarkRefundable
	if l.paused {
		return nil, fail(KindState, string(op), ErrPaused)
	}
	if len(indices) == 0 {
		return nil, fail(KindValidation, string(op), ErrEmptyIndices)
	}
	if !l.replaying && uint64(len(indices)) > l.params.MaxPageSize {
		return nil, fail(KindResourceLimit, string(op), ErrWindowTooLarge)
	}

	var st *entityState
	seen := make(map[uint64]struct{}, len(indices))
	for _, idx := range indices {
		s, r, err := l.rating(op, key, idx)
		if err != nil {
			return nil, err
		}
		st = s
		if !r.Slashed {
			return nil, fail(KindState, string(op), fmt.Errorf("index %d: %w", idx, ErrNotSlashed))
		}
		if _, dup := seen[idx]; dup || st.refunds[idx].Marked {
			return nil, fail(KindState, string(op), fmt.Errorf("index %d: %w", idx, ErrAlreadyMarked))
		}
		if r.Stake == 0 {
			return nil, fail(KindState, string(op), fmt.Errorf("index %d: %w", idx, ErrNothingToRefund))
		}
		seen[idx] = struct{}{}
	}

	marked := append([]uint64(nil), indices...)
	events := make([]Event, 0, len(marked))
	for _, idx := range marked {
		ev := entityEvent(EventRefundAvailable, key, caller, at).withIndex(idx)
		ev.Stake = st.ratings[idx].Stake
		events = append(events, ev)
	}

	return &mutation{
		entry: Entry{
			ID:         uuid.New(),
			Op:         op,
			Entity:     key,
			Caller:     caller,
			At:         at,
			Indices:    marked,
			Stats:      st.stats,
			TrustScore: st.score,
		},
		apply: func() {
			for _, idx := range marked {
				st.refunds[idx] = RefundFlag{Marked: true}
			}
		},
		events: events,
	}, nil
}

func (l *Ledger) planClaim(caller string, key EntityKey, index uint64, at time.Time) (*mutation, error) {
	const op = OpClaimRefund
	st, r, err := l.rating(op, key, index)
	if err != nil {
		return nil, err
	}
	if r.Rater != caller {
		return nil, fail(KindAuthorization, string(op), ErrNotRater)
	}
	if !r.Slashed {
		return nil, fail(KindState, string(op), ErrNotSlashed)
	}
	flag := st.refunds[index]
	if !flag.Marked {
		return nil, fail(KindState, string(op), ErrNotMarked)
	}
	if flag.Claimed {
		return nil, fail(KindState, string(op), ErrAlreadyClaimed)
	}
	if r.Stake == 0 {
		return nil, fail(KindState, string(op), ErrNothingToRefund)
	}

	amount := r.Stake
	stats, err := st.stats.remove(contribution{stake: amount})
	if err != nil {
		return nil, fail(KindState, string(op), err)
	}
	acct := l.accounts[caller]
	if acct.TotalStaked < amount {
		return nil, fail(KindState, string(op), errAggregateUnderflow)
	}
	acct.TotalStaked -= amount
	r.Stake = 0
	trustScore := st.score

	ev := entityEvent(EventRefundClaimed, key, caller, at).withIndex(index)
	ev.Stake = amount

	return &mutation{
		entry: Entry{
			ID:         uuid.New(),
			Op:         op,
			Entity:     key,
			Caller:     caller,
			At:         at,
			Index:      index,
			Stake:      amount,
			Stats:      stats,
			TrustScore: trustScore,
		},
		apply: func() {
			st.refunds[index] = RefundFlag{Marked: true, Claimed: true}
			st.ratings[index] = r
			st.stats = stats
			l.accounts[caller] = acct
		},
		events: []Event{ev},
	}, nil
}

// planReverseClaim returns a claimed rating's stake to escrow custody and
// reopens its refund. Later mutations of the entity are kept, so the stake
// is added back rather than restored from a snapshot.
func (l *Ledger) planReverseClaim(caller string, key EntityKey, index, amount uint64, at time.Time) (*mutation, error) {
	const op = OpRefundReversed
	st, r, err := l.rating(op, key, index)
	if err != nil {
		return nil, err
	}
	if r.Rater != caller || !st.refunds[index].Claimed || r.Stake != 0 || amount == 0 {
		return nil, fail(KindState, string(op), ErrNotClaimed)
	}

	stats := st.stats.add(contribution{stake: amount})
	acct := l.accounts[caller]
	acct.TotalStaked += amount
	r.Stake = amount

	return &mutation{
		entry: Entry{
			ID:         uuid.New(),
			Op:         op,
			Entity:     key,
			Caller:     caller,
			At:         at,
			Index:      index,
			Stake:      amount,
			Stats:      stats,
			TrustScore: st.score,
		},
		apply: func() {
			st.refunds[index] = RefundFlag{Marked: true}
			st.ratings[index] = r
			st.stats = stats
			l.accounts[caller] = acct
		},
	}, nil
}
