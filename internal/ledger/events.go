package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a ledger change notification.
type EventKind string

const (
	EventRatingSubmitted EventKind = "rating.submitted"
	EventRatingUpdated   EventKind = "rating.updated"
	EventStakeAdded      EventKind = "rating.stake_added"
	EventRatingSlashed   EventKind = "rating.slashed"
	EventRefundAvailable EventKind = "refund.available"
	EventRefundClaimed   EventKind = "refund.claimed"
	EventPaused          EventKind = "ledger.paused"
	EventUnpaused        EventKind = "ledger.unpaused"
	EventMaxStakeUpdated EventKind = "ledger.max_stake_updated"
)

// Event is emitted after a mutation commits.
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Kind       EventKind  `json:"kind"`
	Entity     *EntityKey `json:"entity,omitempty"`
	Caller     string     `json:"caller"`
	Index      *uint64    `json:"index,omitempty"`
	Score      uint8      `json:"score,omitempty"`
	Stake      uint64     `json:"stake,omitempty"`
	Weight     uint64     `json:"weight,omitempty"`
	TrustScore *uint8     `json:"trust_score,omitempty"`
	MaxStake   uint64     `json:"max_stake,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// EventSink receives committed change notifications. Delivery failures are
// logged by the ledger and never undo the mutation.
type EventSink interface {
	Emit(e Event) error
}

type nopSink struct{}

func (nopSink) Emit(Event) error { return nil }

func entityEvent(kind EventKind, key EntityKey, caller string, at time.Time) Event {
	k := key
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Entity:    &k,
		Caller:    caller,
		Timestamp: at,
	}
}

func (e Event) withIndex(i uint64) Event {
	e.Index = &i
	return e
}

func (e Event) withTrustScore(s uint8) Event {
	e.TrustScore = &s
	return e
}
