package ledger

import (
	"fmt"

	"github.com/MikeSquared-Agency/verity/internal/trust"
)

// Params configure a Ledger.
type Params struct {
	// MaxStake is the initial per-rating stake ceiling.
	MaxStake uint64
	// MinStakeCeiling and MaxStakeCeiling bound UpdateMaxStake.
	MinStakeCeiling uint64
	MaxStakeCeiling uint64

	Weight trust.WeightParams

	// MaxPageSize bounds RatingsRange windows, PendingRefunds pages and
	// MarkRefundable batches.
	MaxPageSize uint64
	// ScanLimit bounds how many ratings a single PendingRefunds call inspects.
	ScanLimit uint64
	// UnboundedReadLimit is the largest collection Ratings will return.
	UnboundedReadLimit uint64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MaxStake:           1_000_000,
		MinStakeCeiling:    1_000,
		MaxStakeCeiling:    1_000_000_000,
		Weight:             trust.DefaultWeightParams,
		MaxPageSize:        100,
		ScanLimit:          1_000,
		UnboundedReadLimit: 500,
	}
}

// Validate reports inconsistent parameters.
func (p Params) Validate() error {
	if p.MinStakeCeiling == 0 || p.MinStakeCeiling > p.MaxStakeCeiling {
		return fmt.Errorf("invalid stake ceiling bounds [%d, %d]", p.MinStakeCeiling, p.MaxStakeCeiling)
	}
	if p.MaxStake < p.MinStakeCeiling || p.MaxStake > p.MaxStakeCeiling {
		return fmt.Errorf("max stake %d outside [%d, %d]", p.MaxStake, p.MinStakeCeiling, p.MaxStakeCeiling)
	}
	if p.Weight.StakeUnit == 0 {
		return fmt.Errorf("stake unit must be greater than zero")
	}
	if p.MaxPageSize == 0 || p.ScanLimit == 0 || p.UnboundedReadLimit == 0 {
		return fmt.Errorf("page size, scan limit and unbounded read limit must be greater than zero")
	}
	return nil
}
