package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/metadata"
)

// PutMetadata stores a metadata blob. Blobs are content addressed, so a
// repeated insert is ignored.
func (s *Store) PutMetadata(ctx context.Context, ref ledger.MetadataRef, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rating_metadata (ref, body)
		VALUES ($1, $2)
		ON CONFLICT (ref) DO NOTHING`,
		ref.String(), data,
	)
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	return nil
}

func (s *Store) GetMetadata(ctx context.Context, ref ledger.MetadataRef) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM rating_metadata WHERE ref = $1`, ref.String()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return data, nil
}
