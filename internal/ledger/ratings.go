package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/verity/internal/trust"
)

const (
	minScore = 1
	maxScore = 5
)

// Submit records a new staked rating and returns its index.
func (l *Ledger) Submit(ctx context.Context, caller string, key EntityKey, score uint8, ref MetadataRef, stake uint64) (uint64, error) {
	m, err := l.run(ctx, OpSubmit, func(at time.Time) (*mutation, error) {
		return l.planSubmit(caller, key, score, ref, stake, 0, at)
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("rating submitted",
		"entity", key,
		"rater", caller,
		"index", m.entry.Index,
		"score", score,
		"stake", stake,
		"trust_score", m.entry.TrustScore,
	)
	return m.entry.Index, nil
}

// Update changes the caller's active rating in place, optionally adding
// extraStake to it.
func (l *Ledger) Update(ctx context.Context, caller string, key EntityKey, score uint8, ref MetadataRef, extraStake uint64) error {
	m, err := l.run(ctx, OpUpdate, func(at time.Time) (*mutation, error) {
		return l.planUpdate(caller, key, score, ref, extraStake, 0, at)
	})
	if err != nil {
		return err
	}
	l.logger.Info("rating updated",
		"entity", key,
		"rater", caller,
		"index", m.entry.Index,
		"score", score,
		"extra_stake", extraStake,
		"trust_score", m.entry.TrustScore,
	)
	return nil
}

func validateRatingInput(op Op, caller string, score uint8, ref MetadataRef) error {
	if caller == "" {
		return fail(KindValidation, string(op), ErrEmptyCaller)
	}
	if score < minScore || score > maxScore {
		return fail(KindValidation, string(op), ErrInvalidScore)
	}
	if ref.IsZero() {
		return fail(KindValidation, string(op), ErrEmptyMetadata)
	}
	return nil
}

// ratingWeight returns recorded when it is set (replay) and computes the
// weight from the current parameters otherwise.
func (l *Ledger) ratingWeight(reputation, stake, recorded uint64) uint64 {
	if recorded != 0 {
		return recorded
	}
	return trust.Weight(reputation, stake, l.params.Weight)
}

func (l *Ledger) planSubmit(caller string, key EntityKey, score uint8, ref MetadataRef, stake, recordedWeight uint64, at time.Time) (*mutation, error) {
	const op = OpSubmit
	if l.paused {
		return nil, fail(KindState, string(op), ErrPaused)
	}
	if err := validateRatingInput(op, caller, score, ref); err != nil {
		return nil, err
	}
	if stake == 0 {
		return nil, fail(KindValidation, string(op), ErrInvalidStake)
	}
	if stake > l.params.MaxStake && !l.replaying {
		return nil, fail(KindResourceLimit, string(op), ErrStakeAboveMax)
	}

	st := l.entity(key)
	fresh := st == nil
	if fresh {
		st = newEntityState()
	}
	if idx, ok := st.raterIndex[caller]; ok && !st.ratings[idx].Slashed {
		return nil, fail(KindState, string(op), ErrDuplicateRating)
	}

	acct := l.accounts[caller]
	weight := l.ratingWeight(acct.Reputation, stake, recordedWeight)
	rating := Rating{
		Rater:       caller,
		Score:       score,
		MetadataRef: ref,
		Stake:       stake,
		Timestamp:   at,
		Weight:      weight,
	}
	index := uint64(len(st.ratings))

	acct.Reputation++
	acct.TotalStaked += stake
	acct.RatingsGiven++

	stats := st.stats.add(contribution{
		score:    uint64(score),
		weight:   weight,
		stake:    stake,
		active:   true,
		appended: true,
	})
	trustScore := stats.TrustScore()

	entry := Entry{
		ID:          uuid.New(),
		Op:          op,
		Entity:      key,
		Caller:      caller,
		At:          at,
		Score:       score,
		MetadataRef: ref,
		Stake:       stake,
		Index:       index,
		Weight:      weight,
		Stats:       stats,
		TrustScore:  trustScore,
	}
	ev := entityEvent(EventRatingSubmitted, key, caller, at).withIndex(index).withTrustScore(trustScore)
	ev.Score, ev.Stake, ev.Weight = score, stake, weight

	return &mutation{
		entry: entry,
		apply: func() {
			if fresh {
				l.entities[key] = st
			}
			st.ratings = append(st.ratings, rating)
			st.raterIndex[caller] = index
			st.stats = stats
			st.score = trustScore
			l.accounts[caller] = acct
		},
		events: []Event{ev},
	}, nil
}

func (l *Ledger) planUpdate(caller string, key EntityKey, score uint8, ref MetadataRef, extraStake, recordedWeight uint64, at time.Time) (*mutation, error) {
	const op = OpUpdate
	if l.paused {
		return nil, fail(KindState, string(op), ErrPaused)
	}
	if err := validateRatingInput(op, caller, score, ref); err != nil {
		return nil, err
	}

	st := l.entity(key)
	if st == nil {
		return nil, fail(KindState, string(op), ErrNoRating)
	}
	index, ok := st.raterIndex[caller]
	if !ok {
		return nil, fail(KindState, string(op), ErrNoRating)
	}
	old := st.ratings[index]
	if old.Slashed {
		return nil, fail(KindState, string(op), ErrRatingSlashed)
	}
	if !l.replaying && extraStake > 0 && extraStake > l.params.MaxStake-min(old.Stake, l.params.MaxStake) {
		return nil, fail(KindResourceLimit, string(op), ErrStakeAboveMax)
	}

	// The old contribution leaves before the new weight is computed.
	stats, err := st.stats.remove(contribution{
		score:  uint64(old.Score),
		weight: old.Weight,
		active: true,
	})
	if err != nil {
		return nil, fail(KindState, string(op), err)
	}

	acct := l.accounts[caller]
	newStake := old.Stake + extraStake
	weight := l.ratingWeight(acct.Reputation, newStake, recordedWeight)
	stats = stats.add(contribution{
		score:  uint64(score),
		weight: weight,
		stake:  extraStake,
		active: true,
	})
	trustScore := stats.TrustScore()
	acct.TotalStaked += extraStake

	updated := old
	updated.Score = score
	updated.MetadataRef = ref
	updated.Stake = newStake
	updated.Weight = weight
	updated.Timestamp = at

	entry := Entry{
		ID:          uuid.New(),
		Op:          op,
		Entity:      key,
		Caller:      caller,
		At:          at,
		Score:       score,
		MetadataRef: ref,
		Stake:       extraStake,
		Index:       index,
		Weight:      weight,
		Stats:       stats,
		TrustScore:  trustScore,
	}
	ev := entityEvent(EventRatingUpdated, key, caller, at).withIndex(index).withTrustScore(trustScore)
	ev.Score, ev.Stake, ev.Weight = score, newStake, weight
	events := []Event{ev}
	if extraStake > 0 {
		added := entityEvent(EventStakeAdded, key, caller, at).withIndex(index)
		added.Stake = extraStake
		events = append(events, added)
	}

	return &mutation{
		entry: entry,
		apply: func() {
			st.ratings[index] = updated
			st.stats = stats
			st.score = trustScore
			l.accounts[caller] = acct
		},
		events: events,
	}, nil
}
