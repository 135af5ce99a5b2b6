package metadata

import (
	"context"
	"sync"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

// Memory keeps blobs in process.
type Memory struct {
	mu    sync.RWMutex
	blobs map[ledger.MetadataRef][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[ledger.MetadataRef][]byte)}
}

func (m *Memory) PutMetadata(_ context.Context, ref ledger.MetadataRef, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[ref] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) GetMetadata(_ context.Context, ref ledger.MetadataRef) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
