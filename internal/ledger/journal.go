package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op names a journaled mutation.
type Op string

const (
	OpSubmit         Op = "submit"
	OpUpdate         Op = "update"
	OpSlash          Op = "slash"
	OpMarkRefundable Op = "mark_refundable"
	OpClaimRefund    Op = "claim_refund"
	OpRefundReversed Op = "refund_reversed"
	OpPause          Op = "pause"
	OpUnpause        Op = "unpause"
	OpUpdateMaxStake Op = "update_max_stake"
)

// Entry is the durable record of one committed mutation. It carries the
// call's inputs, which are enough to replay it, plus the entity's resulting
// aggregates for projections.
type Entry struct {
	ID          uuid.UUID   `json:"id"`
	Op          Op          `json:"op"`
	Entity      EntityKey   `json:"entity"`
	Caller      string      `json:"caller"`
	At          time.Time   `json:"at"`
	Score       uint8       `json:"score,omitempty"`
	MetadataRef MetadataRef `json:"metadata_ref"`
	Stake       uint64      `json:"stake,omitempty"`
	Index       uint64      `json:"index,omitempty"`
	Indices     []uint64    `json:"indices,omitempty"`
	MaxStake    uint64      `json:"max_stake,omitempty"`
	// Weight is the weight a submit or update assigned to the rating.
	Weight uint64 `json:"weight,omitempty"`

	Stats      Stats `json:"stats"`
	TrustScore uint8 `json:"trust_score"`
}

// HasEntity reports whether the entry applies to a single entity.
func (e Entry) HasEntity() bool {
	switch e.Op {
	case OpPause, OpUnpause, OpUpdateMaxStake:
		return false
	}
	return true
}

// Journal durably records committed mutations. The ledger applies a
// mutation only after Record returns nil.
type Journal interface {
	Record(ctx context.Context, e Entry) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, Entry) error { return nil }

// MemoryJournal keeps entries in process. It is used by tests and by
// deployments without a database.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
	failure error
}

// FailNext makes the next Record call fail with err.
func (j *MemoryJournal) FailNext(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failure = err
}

func (j *MemoryJournal) Record(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.failure; err != nil {
		j.failure = nil
		return err
	}
	j.entries = append(j.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries in commit order.
func (j *MemoryJournal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}
