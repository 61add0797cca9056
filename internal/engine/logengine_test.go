package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestEngine(t *testing.T) *LogEngine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestSetGetRemoveLifecycle(t *testing.T) {
	e := openTestEngine(t)

	require.NoError(t, e.Set("a", "1"))
	v, ok, err := e.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	require.NoError(t, e.Set("a", "2"))
	v, ok, err = e.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", v)

	require.NoError(t, e.Remove("a"))
	_, ok, err = e.Get("a")
	require.NoError(t, err)
	require.False(t, ok)

	err = e.Remove("a")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestGetMissingKey(t *testing.T) {
	e := openTestEngine(t)
	_, ok, err := e.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCursorMatchesLogFileSize(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Set("a", "1"))
	require.NoError(t, e.Set("b", "2"))
	require.NoError(t, e.Remove("a"))

	stat, err := e.file.Stat()
	require.NoError(t, err)
	require.Equal(t, e.cursor, stat.Size())
}

func TestRecoveryAfterReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	require.NoError(t, e.Set("k", "v"))
	require.NoError(t, e.Set("other", "1"))
	require.NoError(t, e.Remove("other"))
	require.NoError(t, e.Close())

	reopened, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	_, ok, err = reopened.Get("other")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInterleavedSetRemoveRecoversLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	require.NoError(t, e.Set("k", "v1"))
	require.NoError(t, e.Remove("k"))
	require.NoError(t, e.Set("k", "v2"))
	require.NoError(t, e.Close())

	reopened, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestCompactionShrinksLogAndPreservesValues(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 0, 8*1024, nil, zap.NewNop().Sugar()) // low threshold forces compaction well before the 2000-key test would naturally trigger it
	require.NoError(t, err)
	defer e.Close()

	value := strings.Repeat("v", 128)
	const n = 2000
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, e.Set(key, value))
	}

	path := filepath.Join(dir, "log")
	stat, err := os.Stat(path)
	require.NoError(t, err)

	uncompactedUpperBound := int64(n) * int64(8+len(value)+64)
	require.Less(t, stat.Size(), uncompactedUpperBound)

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		v, ok, err := e.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, value, v)
	}
}

func TestCompactionDropsTombstonedKeys(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Set("k", "v"))
	require.NoError(t, e.Remove("k"))

	require.NoError(t, e.compact())

	e.mu.Lock()
	_, present := e.index["k"]
	e.mu.Unlock()
	require.False(t, present, "compaction must drop the index entry for a tombstoned key")

	_, ok, err := e.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConcurrentSetsOnSameKey(t *testing.T) {
	e := openTestEngine(t)

	done := make(chan error, 2)
	go func() { done <- e.Set("k", "v1") }()
	go func() { done <- e.Set("k", "v2") }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	v, ok, err := e.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, []string{"v1", "v2"}, v)
}

func TestConfiguredThresholdTriggersOnCompactCallback(t *testing.T) {
	dir := t.TempDir()
	var compactions int
	e, err := Open(dir, 0, 2*1024, func() { compactions++ }, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer e.Close()

	value := string(make([]byte, 128))
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Set(fmt.Sprintf("key-%d", i), value))
	}

	require.Greater(t, compactions, 0, "a 2KiB threshold should have been crossed well before 100 128-byte sets completed")
}

func TestGetSurfacesCorruptRecord(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Set("k", "v"))

	offset := e.index["k"]
	var lenBuf [8]byte
	_, err := e.file.ReadAt(lenBuf[:], offset)
	require.NoError(t, err)
	payloadLen := binary.BigEndian.Uint64(lenBuf[:])

	garbage := make([]byte, payloadLen)
	for i := range garbage {
		garbage[i] = 0xff
	}
	_, err = e.file.WriteAt(garbage, offset+8)
	require.NoError(t, err)

	_, _, err = e.Get("k")
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestPromoteLeftoverCompactionOnOpen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, e.Set("k", "v"))
	require.NoError(t, e.Close())

	require.NoError(t, os.Rename(filepath.Join(dir, "log"), filepath.Join(dir, "new_log")))

	reopened, err := Open(dir, 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}
