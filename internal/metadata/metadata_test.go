package metadata

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

func TestEncode_Deterministic(t *testing.T) {
	a := Blob{Comment: "hallucinated a citation", Context: map[string]string{"task": "summarise", "run": "42"}}
	b := Blob{Comment: "hallucinated a citation", Context: map[string]string{"run": "42", "task": "summarise"}}

	refA, dataA, err := Encode(a)
	require.NoError(t, err)
	refB, dataB, err := Encode(b)
	require.NoError(t, err)

	assert.Equal(t, refA, refB)
	assert.Equal(t, dataA, dataB)
	assert.False(t, refA.IsZero())

	refC, _, err := Encode(Blob{Comment: "different"})
	require.NoError(t, err)
	assert.NotEqual(t, refA, refC)
}

func TestEncode_Validation(t *testing.T) {
	tests := []struct {
		name string
		blob Blob
	}{
		{"empty", Blob{}},
		{"whitespace only", Blob{Comment: "   "}},
		{"comment too long", Blob{Comment: strings.Repeat("x", MaxCommentLength+1)}},
		{"invalid utf-8", Blob{Comment: string([]byte{0xff, 0xfe})}},
		{"empty context key", Blob{Comment: "ok", Context: map[string]string{" ": "v"}}},
		{"context key too long", Blob{Comment: "ok", Context: map[string]string{strings.Repeat("k", MaxContextKeyLength+1): "v"}}},
		{"context key invalid utf-8", Blob{Comment: "ok", Context: map[string]string{string([]byte{0xc3, 0x28}): "v"}}},
		{"context value too long", Blob{Comment: "ok", Context: map[string]string{"k": strings.Repeat("v", MaxContextValueLength+1)}}},
		{"context value invalid utf-8", Blob{Comment: "ok", Context: map[string]string{"k": string([]byte{0xff})}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Encode(tt.blob)
			assert.Error(t, err)
		})
	}

	_, _, err := Encode(Blob{Context: map[string]string{"only": "context"}})
	assert.NoError(t, err)
}

func testBackend(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()
	svc := New(backend)

	blob := Blob{Comment: "solid answers", Context: map[string]string{"suite": "eval-7"}}
	ref, err := svc.Put(ctx, blob)
	require.NoError(t, err)

	again, err := svc.Put(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	got, err := svc.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	_, err = svc.Get(ctx, ledger.MetadataRef{1})
	assert.ErrorIs(t, err, ErrNotFound)

	// A blob stored under the wrong reference is rejected on read.
	var forged ledger.MetadataRef
	forged[0] = 0xaa
	require.NoError(t, backend.PutMetadata(ctx, forged, []byte(`{"comment":"forged"}`)))
	_, err = svc.Get(ctx, forged)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestMemoryBackend(t *testing.T) {
	testBackend(t, NewMemory())
}

func TestLevelDBBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata")
	db, err := OpenLevelDB(path)
	require.NoError(t, err)

	testBackend(t, db)

	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, db.Close())

	// Data survives a reopen.
	db, err = OpenLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	n, err = db.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
