package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

var keyPrefix = []byte("meta:")

// LevelDB stores blobs in an embedded LevelDB database, for deployments
// without Postgres.
type LevelDB struct {
	db *leveldb.DB
}

func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func levelKey(ref ledger.MetadataRef) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(ref))
	k = append(k, keyPrefix...)
	return append(k, ref[:]...)
}

func (l *LevelDB) PutMetadata(_ context.Context, ref ledger.MetadataRef, data []byte) error {
	return l.db.Put(levelKey(ref), data, &opt.WriteOptions{Sync: true})
}

func (l *LevelDB) GetMetadata(_ context.Context, ref ledger.MetadataRef) ([]byte, error) {
	data, err := l.db.Get(levelKey(ref), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return data, nil
}

// Count returns the number of stored blobs.
func (l *LevelDB) Count() (int, error) {
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
