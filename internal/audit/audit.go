// Package audit rebuilds the ledger from its journal and checks the
// model_trust projection against the rebuilt state.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/store"
)

type Projection interface {
	GetTrust(ctx context.Context, key ledger.EntityKey) (*store.TrustRecord, error)
}

// Mismatch is one projection field that disagrees with the replayed ledger.
type Mismatch struct {
	Entity     ledger.EntityKey `json:"entity"`
	Field      string           `json:"field"`
	Ledger     uint64           `json:"ledger"`
	Projection uint64           `json:"projection"`
}

type Report struct {
	Entries    int        `json:"entries"`
	Entities   int        `json:"entities"`
	Paused     bool       `json:"paused"`
	MaxStake   uint64     `json:"max_stake"`
	Mismatches []Mismatch `json:"mismatches"`
	Missing    []string   `json:"missing"`
}

func (r Report) OK() bool {
	return len(r.Mismatches) == 0 && len(r.Missing) == 0
}

// Run replays entries into a fresh ledger and compares every entity with
// proj. A nil proj only checks that the journal replays cleanly.
func Run(ctx context.Context, params ledger.Params, entries []ledger.Entry, proj Projection) (Report, error) {
	l, err := ledger.New(params, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return Report{}, err
	}
	if err := l.Replay(entries); err != nil {
		return Report{}, err
	}

	keys := l.Entities()
	rep := Report{
		Entries:    len(entries),
		Entities:   len(keys),
		Paused:     l.Paused(),
		MaxStake:   l.MaxStake(),
		Mismatches: []Mismatch{},
		Missing:    []string{},
	}
	if proj == nil {
		return rep, nil
	}

	for _, key := range keys {
		ms := l.ModelStats(key)
		rec, err := proj.GetTrust(ctx, key)
		if errors.Is(err, store.ErrNoTrustRecord) {
			rep.Missing = append(rep.Missing, key.String())
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("projection for %s: %w", key, err)
		}
		rep.Mismatches = append(rep.Mismatches, compare(key, ms, rec)...)
	}
	return rep, nil
}

func compare(key ledger.EntityKey, ms ledger.ModelStats, rec *store.TrustRecord) []Mismatch {
	fields := []struct {
		name       string
		ledger     uint64
		projection uint64
	}{
		{"trust_score", uint64(ms.TrustScore), uint64(rec.TrustScore)},
		{"total_weighted_score", ms.TotalWeightedScore, rec.TotalWeightedScore},
		{"total_weight", ms.TotalWeight, rec.TotalWeight},
		{"active_ratings", ms.ActiveRatings, rec.ActiveRatings},
		{"total_ratings", ms.TotalRatings, rec.TotalRatings},
		{"total_staked", ms.TotalStaked, rec.TotalStaked},
	}
	var out []Mismatch
	for _, f := range fields {
		if f.ledger != f.projection {
			out = append(out, Mismatch{Entity: key, Field: f.name, Ledger: f.ledger, Projection: f.projection})
		}
	}
	return out
}
