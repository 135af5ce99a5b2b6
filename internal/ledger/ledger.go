// Package ledger implements the reputation-weighted trust ledger: a single
// writer state machine that stores staked ratings per entity, maintains
// running aggregates incrementally, derives a confidence-scaled trust score
// and runs the slash / refund lifecycle of rating collateral.
//
// Every mutation validates completely and computes the next state before
// anything is assigned, so a failed call has no effect. Reads take a shared
// lock and see the latest committed state.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Escrow moves collateral out of the ledger's custody.
//
// Transfer is called after the claim is committed and without the ledger's
// lock held, so reads see the claimed state. Mutating calls made with the
// context it receives fail with ErrReentrantCall. memo is unique per refund
// and must make retries idempotent.
type Escrow interface {
	Transfer(ctx context.Context, to string, amount uint64, memo string) error
}

// Observer receives operation outcomes and score changes, typically for
// metrics.
type Observer interface {
	ObserveOp(op Op, err error)
	ObserveScore(key EntityKey, score uint8)
}

type nopObserver struct{}

func (nopObserver) ObserveOp(Op, error)           {}
func (nopObserver) ObserveScore(EntityKey, uint8) {}

// Option customises a Ledger.
type Option func(*Ledger)

// WithJournal records every committed mutation in j.
func WithJournal(j Journal) Option { return func(l *Ledger) { l.journal = j } }

// WithEventSink delivers change notifications to s.
func WithEventSink(s EventSink) Option { return func(l *Ledger) { l.sink = s } }

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option { return func(l *Ledger) { l.observer = o } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

type entityState struct {
	ratings    []Rating
	raterIndex map[string]uint64
	refunds    map[uint64]RefundFlag
	stats      Stats
	score      uint8
}

func newEntityState() *entityState {
	return &entityState{
		raterIndex: make(map[string]uint64),
		refunds:    make(map[uint64]RefundFlag),
	}
}

// Ledger is the authoritative trust ledger.
type Ledger struct {
	mu       sync.RWMutex
	params   Params
	paused   bool
	entities map[EntityKey]*entityState
	accounts map[string]Account

	auth     Authorizer
	escrow   Escrow
	journal  Journal
	sink     EventSink
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	// replaying relaxes deployment limits while Replay re-applies entries
	// that were validated when they were first committed.
	replaying bool
}

// New creates an empty ledger.
func New(p Params, auth Authorizer, esc Escrow, logger *slog.Logger, opts ...Option) (*Ledger, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("ledger params: %w", err)
	}
	if auth == nil {
		auth = AdminSet{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		params:   p,
		entities: make(map[EntityKey]*entityState),
		accounts: make(map[string]Account),
		auth:     auth,
		escrow:   esc,
		journal:  nopJournal{},
		sink:     nopSink{},
		observer: nopObserver{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// mutation is a fully validated state change waiting to be committed.
type mutation struct {
	entry  Entry
	apply  func()
	events []Event
}

type transferKey struct{}

// run executes one mutating operation and publishes its events.
func (l *Ledger) run(ctx context.Context, op Op, plan func(at time.Time) (*mutation, error)) (*mutation, error) {
	m, err := l.commit(ctx, op, plan, true)
	return m, l.observe(op, err)
}

// commit plans, journals and applies one mutation under the write lock.
// Nothing is applied unless the journal accepted the entry.
func (l *Ledger) commit(ctx context.Context, op Op, plan func(at time.Time) (*mutation, error), publish bool) (*mutation, error) {
	if ctx.Value(transferKey{}) != nil {
		return nil, fail(KindState, string(op), ErrReentrantCall)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := plan(l.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := l.journal.Record(ctx, m.entry); err != nil {
		return nil, fmt.Errorf("record %s: %w", op, err)
	}
	m.apply()
	if publish {
		l.publish(m)
	}
	return m, nil
}

func (l *Ledger) publish(m *mutation) {
	if m.entry.HasEntity() {
		l.observer.ObserveScore(m.entry.Entity, m.entry.TrustScore)
	}
	for _, ev := range m.events {
		if err := l.sink.Emit(ev); err != nil {
			l.logger.Warn("failed to publish ledger event", "kind", ev.Kind, "error", err)
		}
	}
}

func (l *Ledger) observe(op Op, err error) error {
	l.observer.ObserveOp(op, err)
	if err != nil {
		l.logger.Debug("ledger operation rejected", "op", op, "error", err)
	}
	return err
}

func (l *Ledger) requireAdmin(op Op, caller string) error {
	if !l.auth.IsAdmin(caller) {
		return fail(KindAuthorization, string(op), ErrNotAdmin)
	}
	return nil
}

func (l *Ledger) entity(key EntityKey) *entityState {
	return l.entities[key]
}

// Replay rebuilds state from journal entries in commit order. It bypasses
// authorization, events, transfers and the deployment limits in Params
// (stake ceiling, batch size), uses the weights recorded in the entries, and
// fails if an entry's recorded aggregates disagree with the replayed ones.
func (l *Ledger) Replay(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.replaying = true
	defer func() { l.replaying = false }()

	for i, e := range entries {
		m, err := l.planEntry(e)
		if err != nil {
			return fmt.Errorf("replay entry %d (%s): %w", i, e.Op, err)
		}
		m.apply()
		if e.HasEntity() {
			st := l.entity(e.Entity)
			if st == nil || st.stats != e.Stats || st.score != e.TrustScore {
				return fmt.Errorf("replay entry %d (%s): aggregates diverged for %s", i, e.Op, e.Entity)
			}
		}
	}
	l.logger.Info("ledger replayed", "entries", len(entries), "entities", len(l.entities))
	return nil
}

func (l *Ledger) planEntry(e Entry) (*mutation, error) {
	switch e.Op {
	case OpSubmit:
		return l.planSubmit(e.Caller, e.Entity, e.Score, e.MetadataRef, e.Stake, e.Weight, e.At)
	case OpUpdate:
		return l.planUpdate(e.Caller, e.Entity, e.Score, e.MetadataRef, e.Stake, e.Weight, e.At)
	case OpSlash:
		return l.planSlash(e.Caller, e.Entity, e.Index, e.At)
	case OpMarkRefundable:
		return l.planMarkRefundable(e.Caller, e.Entity, e.Indices, e.At)
	case OpClaimRefund:
		return l.planClaim(e.Caller, e.Entity, e.Index, e.At)
	case OpRefundReversed:
		return l.planReverseClaim(e.Caller, e.Entity, e.Index, e.Stake, e.At)
	case OpPause:
		return l.planPause(e.Caller, true, e.At)
	case OpUnpause:
		return l.planPause(e.Caller, false, e.At)
	case OpUpdateMaxStake:
		return l.planMaxStake(e.Caller, e.MaxStake, e.At)
	default:
		return nil, fmt.Errorf("unknown op %q", e.Op)
	}
}

// TrustScore returns the cached trust score of an entity.
func (l *Ledger) TrustScore(key EntityKey) uint8 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if st := l.entity(key); st != nil {
		return st.score
	}
	return 0
}

// ModelStats returns the aggregates and score of an entity.
func (l *Ledger) ModelStats(key EntityKey) ModelStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ms := ModelStats{Entity: key}
	if st := l.entity(key); st != nil {
		ms.Stats = st.stats
		ms.TrustScore = st.score
	}
	return ms
}

// RecomputeStats rebuilds an entity's aggregates from its full history.
// It must always equal ModelStats(key).Stats.
func (l *Ledger) RecomputeStats(key EntityKey) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if st := l.entity(key); st != nil {
		return recompute(st.ratings)
	}
	return Stats{}
}

// RatingCount returns the number of ratings ever submitted for an entity.
func (l *Ledger) RatingCount(key EntityKey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if st := l.entity(key); st != nil {
		return uint64(len(st.ratings))
	}
	return 0
}

// RatingIndex returns the index of the rater's latest rating for an entity.
func (l *Ledger) RatingIndex(key EntityKey, rater string) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.entity(key)
	if st == nil {
		return 0, false
	}
	idx, ok := st.raterIndex[rater]
	return idx, ok
}

// RefundStatus returns the refund flags of one rating.
func (l *Ledger) RefundStatus(key EntityKey, index uint64) (RefundFlag, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.entity(key)
	if st == nil || index >= uint64(len(st.ratings)) {
		return RefundFlag{}, fail(KindValidation, "refund_status", ErrIndexOutOfRange)
	}
	return st.refunds[index], nil
}

// Account returns a rater's account.
func (l *Ledger) Account(rater string) Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[rater]
}

// Paused reports whether mutations other than refund claims are blocked.
func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// MaxStake returns the current per-rating stake ceiling.
func (l *Ledger) MaxStake() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params.MaxStake
}

// Params returns the ledger's current parameters.
func (l *Ledger) Params() Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params
}

// Entities returns every entity key with at least one rating, sorted.
func (l *Ledger) Entities() []EntityKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]EntityKey, 0, len(l.entities))
	for k := range l.entities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	return keys
}
