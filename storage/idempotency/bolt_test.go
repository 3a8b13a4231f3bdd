package idempotency_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/storage/idempotency"
)

func newTestStore(t *testing.T) *idempotency.Store {
	t.Helper()
	s, err := idempotency.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOnce(t *testing.T) {
	s := newTestStore(t)

	var calls int
	create := func() (string, error) {
		calls++
		return "rec-1", nil
	}

	id, replayed, err := s.Once("key-1", create)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)
	assert.False(t, replayed)

	id, replayed, err = s.Once("key-1", create)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)
	assert.True(t, replayed)
	assert.Equal(t, 1, calls, "fn must only run for the first call")

	id, replayed, err = s.Once("key-2", func() (string, error) { return "rec-2", nil })
	require.NoError(t, err)
	assert.Equal(t, "rec-2", id)
	assert.False(t, replayed)
}

func TestOnceFailureIsNotRemembered(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	_, _, err := s.Once("key", func() (string, error) { return "", boom })
	assert.Equal(t, boom, err)

	id, replayed, err := s.Once("key", func() (string, error) { return "rec", nil })
	require.NoError(t, err)
	assert.Equal(t, "rec", id)
	assert.False(t, replayed)
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []string{"a", "b", "c"} {
		key := k
		_, _, err := s.Once(key, func() (string, error) { return "rec-" + key, nil })
		require.NoError(t, err)
	}

	n, err := s.Purge(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Purge(time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, replayed, err := s.Once("a", func() (string, error) { return "rec-new", nil })
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestOnceKeyInProgress(t *testing.T) {
	s := newTestStore(t)

	var innerCalls int
	id, replayed, err := s.Once("key", func() (string, error) {
		_, _, err := s.Once("key", func() (string, error) {
			innerCalls++
			return "rec-dup", nil
		})
		assert.Equal(t, fee.ErrKeyInProgress, err)

		// other keys are not blocked while this one is being created
		otherID, _, err := s.Once("other", func() (string, error) { return "rec-other", nil })
		require.NoError(t, err)
		assert.Equal(t, "rec-other", otherID)
		return "rec", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "rec", id)
	assert.False(t, replayed)
	assert.Zero(t, innerCalls)

	id, replayed, err = s.Once("key", func() (string, error) { return "rec-dup", nil })
	require.NoError(t, err)
	assert.Equal(t, "rec", id)
	assert.True(t, replayed)
}

func TestPurgeDropsPendingKeys(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Once("key", func() (string, error) {
		n, err := s.Purge(time.Now().UTC().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return "rec", nil
	})
	require.NoError(t, err)

	id, replayed, err := s.Once("key", func() (string, error) { return "rec-new", nil })
	require.NoError(t, err)
	assert.Equal(t, "rec", id)
	assert.True(t, replayed)
}
