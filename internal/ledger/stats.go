package ledger

import "github.com/MikeSquared-Agency/verity/internal/trust"

// Stats are the running aggregates of one entity.
//
// TotalWeightedScore, TotalWeight and ActiveRatings cover non-slashed
// ratings. TotalRatings counts every rating ever appended. TotalStaked is
// the collateral still escrowed for the entity, slashed ratings included
// until their refund is claimed.
type Stats struct {
	TotalWeightedScore uint64 `json:"total_weighted_score"`
	TotalWeight        uint64 `json:"total_weight"`
	ActiveRatings      uint64 `json:"active_ratings"`
	TotalRatings       uint64 `json:"total_ratings"`
	TotalStaked        uint64 `json:"total_staked"`
}

// contribution is what a single rating adds to or removes from Stats.
type contribution struct {
	score    uint64
	weight   uint64
	stake    uint64
	active   bool // counts toward the weighted sums and ActiveRatings
	appended bool // a new rating entering history
}

// add returns s with c included.
func (s Stats) add(c contribution) Stats {
	if c.active {
		s.TotalWeightedScore += c.score * c.weight
		s.TotalWeight += c.weight
		s.ActiveRatings++
	}
	if c.appended {
		s.TotalRatings++
	}
	s.TotalStaked += c.stake
	return s
}

// remove returns s with c taken out. History is append-only, so c.appended
// is ignored.
func (s Stats) remove(c contribution) (Stats, error) {
	if c.active {
		ws := c.score * c.weight
		if s.TotalWeightedScore < ws || s.TotalWeight < c.weight || s.ActiveRatings == 0 {
			return s, errAggregateUnderflow
		}
		s.TotalWeightedScore -= ws
		s.TotalWeight -= c.weight
		s.ActiveRatings--
	}
	if s.TotalStaked < c.stake {
		return s, errAggregateUnderflow
	}
	s.TotalStaked -= c.stake
	return s, nil
}

// TrustScore derives the confidence-scaled score from s.
func (s Stats) TrustScore() uint8 {
	return trust.Score(s.TotalWeightedScore, s.TotalWeight, s.ActiveRatings)
}

// recompute rebuilds Stats from history. It is the reference the
// incremental primitives must always agree with.
func recompute(ratings []Rating) Stats {
	var s Stats
	for _, r := range ratings {
		s = s.add(contribution{
			score:    uint64(r.Score),
			weight:   r.Weight,
			stake:    r.Stake,
			active:   !r.Slashed,
			appended: true,
		})
	}
	return s
}
