package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// EntityKey identifies a rated entity. It is the Keccak-256 hash of the
// entity's slug.
type EntityKey [32]byte

// EntityKeyFromSlug derives the key for a human-readable slug.
func EntityKeyFromSlug(slug string) EntityKey {
	var k EntityKey
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(slug))
	h.Sum(k[:0])
	return k
}

// ParseEntityKey parses a 0x-prefixed hex key.
func ParseEntityKey(s string) (EntityKey, error) {
	var k EntityKey
	err := decodeHash32(s, k[:])
	return k, err
}

func (k EntityKey) String() string { return "0x" + hex.EncodeToString(k[:]) }

func (k EntityKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EntityKey) UnmarshalText(b []byte) error { return decodeHash32(string(b), k[:]) }

// MetadataRef points at off-chain rating content. The zero value is empty.
type MetadataRef [32]byte

// ParseMetadataRef parses a 0x-prefixed hex reference.
func ParseMetadataRef(s string) (MetadataRef, error) {
	var r MetadataRef
	err := decodeHash32(s, r[:])
	return r, err
}

func (r MetadataRef) IsZero() bool { return r == MetadataRef{} }

func (r MetadataRef) String() string { return "0x" + hex.EncodeToString(r[:]) }

func (r MetadataRef) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *MetadataRef) UnmarshalText(b []byte) error { return decodeHash32(string(b), r[:]) }

func decodeHash32(s string, dst []byte) error {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return fmt.Errorf("decode hash: expected 64 hex characters, got %d", len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("decode hash: %w", err)
	}
	return nil
}

// Rating is a single staked rating of an entity.
type Rating struct {
	Rater       string      `json:"rater"`
	Score       uint8       `json:"score"`
	MetadataRef MetadataRef `json:"metadata_ref"`
	Stake       uint64      `json:"stake"`
	Timestamp   time.Time   `json:"timestamp"`
	Slashed     bool        `json:"slashed"`
	Weight      uint64      `json:"weight"`
}

// Account tracks a rater's standing across all entities.
type Account struct {
	Reputation   uint64 `json:"reputation"`
	TotalStaked  uint64 `json:"total_staked"`
	RatingsGiven uint64 `json:"ratings_given"`
}

// RefundFlag is the refund state of one rating.
type RefundFlag struct {
	Marked  bool `json:"marked"`
	Claimed bool `json:"claimed"`
}

// ModelStats is the published view of an entity's aggregates.
type ModelStats struct {
	Entity     EntityKey `json:"entity"`
	TrustScore uint8     `json:"trust_score"`
	Stats
}

// PendingPage is one page of refundable rating indices.
type PendingPage struct {
	Indices []uint64 `json:"indices"`
	// Next is the index the following call should start from.
	Next uint64 `json:"next"`
	// HasMore reports that ratings from Next onward were not scanned yet. It
	// says nothing about whether any of them belong to the rater, so the
	// next page may come back empty.
	HasMore bool `json:"has_more"`
}
