package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugforge/plugforge/cache"
)

func TestFingerprint(t *testing.T) {
	a := cache.Fingerprint([]byte("module-a"))
	b := cache.Fingerprint([]byte("module-b"))

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cache.Fingerprint([]byte("module-a")), "fingerprint must be deterministic")

	// Mutating one byte must change the fingerprint.
	mutated := []byte("module-a")
	mutated[0] ^= 0x01
	assert.NotEqual(t, a, cache.Fingerprint(mutated))
}

func TestStorePutLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.NewStore(dir)
	require.NoError(t, err)

	bytecode := []byte("\x00asm fake module")
	fp, err := store.Put(bytecode)
	require.NoError(t, err)
	assert.Equal(t, cache.Fingerprint(bytecode), fp)
	assert.True(t, store.Contains(fp))

	loaded, err := store.Load(fp)
	require.NoError(t, err)
	assert.Equal(t, bytecode, loaded)

	// Atomic publish must leave no temporary files behind.
	leftovers, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStorePutIsIdempotent(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	bytecode := []byte("same bytes")
	fp1, err := store.Put(bytecode)
	require.NoError(t, err)
	fp2, err := store.Put(bytecode)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(cache.Fingerprint([]byte("never stored")))
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStoreCorruptedEntryTreatedAsMissing(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	fp, err := store.Put([]byte("original content"))
	require.NoError(t, err)

	// Corrupt the entry in place: its content no longer hashes to its key.
	require.NoError(t, os.WriteFile(store.Path(fp), []byte("tampered"), 0o644))

	_, err = store.Load(fp)
	assert.ErrorIs(t, err, cache.ErrNotFound, "fingerprint mismatch is a miss, not a crash")
}
