package trust

// WeightScale is the fixed-point denominator applied to the stake bonus.
// A stake multiplier of 1000 doubles the reputation base.
const WeightScale = 1000

// WeightParams holds the deployment-dependent inputs of the weight formula.
type WeightParams struct {
	// MaxReputation caps the reputation counter before it is used.
	MaxReputation uint64
	// StakeUnit is the stake denomination that counts as one step of the
	// stake multiplier's square root.
	StakeUnit uint64
}

// DefaultWeightParams matches the ledger's default configuration.
var DefaultWeightParams = WeightParams{
	MaxReputation: 10_000,
	StakeUnit:     1_000,
}

// ISqrt returns floor(sqrt(n)) using Newton's iteration.
func ISqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := n
	y := x/2 + x&1
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// Weight returns the influence of a rating given the rater's reputation
// and the rating's stake.
//
// Formula: isqrt(min(reputation, max)+1) * (1000 + isqrt(stake/unit)) / 1000
func Weight(reputation, stake uint64, p WeightParams) uint64 {
	if reputation > p.MaxReputation {
		reputation = p.MaxReputation
	}
	base := ISqrt(reputation + 1)

	unit := p.StakeUnit
	if unit == 0 {
		unit = 1
	}
	multiplier := ISqrt(stake / unit)

	return base * (WeightScale + multiplier) / WeightScale
}
