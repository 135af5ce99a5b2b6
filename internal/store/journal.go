package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

// Record appends e to ledger_journal and refreshes the model_trust
// projection in one transaction.
func (s *Store) Record(ctx context.Context, e ledger.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var entity *string
	if e.HasEntity() {
		key := e.Entity.String()
		entity = &key
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_journal (id, op, entity, caller, recorded_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, string(e.Op), entity, e.Caller, e.At, payload,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	if entity != nil {
		if err := upsertTrust(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadJournal returns every journal entry in commit order.
func (s *Store) LoadJournal(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM ledger_journal ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		var e ledger.Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode journal entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

// JournalSize returns the number of recorded entries.
func (s *Store) JournalSize(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM ledger_journal`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}
