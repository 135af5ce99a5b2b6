package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

// ErrNoTrustRecord is returned when an entity has no projection row.
var ErrNoTrustRecord = errors.New("no trust record")

// TrustRecord is the model_trust projection of one entity.
type TrustRecord struct {
	Entity             string
	TrustScore         uint8
	TotalWeightedScore uint64
	TotalWeight        uint64
	ActiveRatings      uint64
	TotalRatings       uint64
	TotalStaked        uint64
	LastOp             string
	UpdatedAt          time.Time
}

func upsertTrust(ctx context.Context, tx pgx.Tx, e ledger.Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO model_trust (entity, trust_score, total_weighted_score, total_weight, active_ratings, total_ratings, total_staked, last_op, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entity)
		DO UPDATE SET
			trust_score = $2,
			total_weighted_score = $3,
			total_weight = $4,
			active_ratings = $5,
			total_ratings = $6,
			total_staked = $7,
			last_op = $8,
			updated_at = $9`,
		e.Entity.String(),
		int16(e.TrustScore),
		int64(e.Stats.TotalWeightedScore),
		int64(e.Stats.TotalWeight),
		int64(e.Stats.ActiveRatings),
		int64(e.Stats.TotalRatings),
		int64(e.Stats.TotalStaked),
		string(e.Op),
		e.At,
	)
	if err != nil {
		return fmt.Errorf("upsert trust: %w", err)
	}
	return nil
}

const trustColumns = `entity, trust_score, total_weighted_score, total_weight, active_ratings, total_ratings, total_staked, last_op, updated_at`

func scanTrust(row pgx.Row) (*TrustRecord, error) {
	var (
		t                              TrustRecord
		score                          int16
		tws, tw, active, total, staked int64
	)
	err := row.Scan(&t.Entity, &score, &tws, &tw, &active, &total, &staked, &t.LastOp, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.TrustScore = uint8(score)
	t.TotalWeightedScore = uint64(tws)
	t.TotalWeight = uint64(tw)
	t.ActiveRatings = uint64(active)
	t.TotalRatings = uint64(total)
	t.TotalStaked = uint64(staked)
	return &t, nil
}

// GetTrust fetches the projected trust record of an entity.
func (s *Store) GetTrust(ctx context.Context, key ledger.EntityKey) (*TrustRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trustColumns+` FROM model_trust WHERE entity = $1`, key.String())
	t, err := scanTrust(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTrustRecord
	}
	if err != nil {
		return nil, fmt.Errorf("get trust: %w", err)
	}
	return t, nil
}

// TopTrust returns up to limit entities ordered by trust score.
func (s *Store) TopTrust(ctx context.Context, limit int) ([]TrustRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+trustColumns+`
		FROM model_trust
		ORDER BY trust_score DESC, active_ratings DESC, entity
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trust: %w", err)
	}
	defer rows.Close()

	var out []TrustRecord
	for rows.Next() {
		t, err := scanTrust(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trust: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
