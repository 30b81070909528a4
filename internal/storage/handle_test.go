package storage_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tds/internal/storage"
)

// countingRemover records every removal request it receives.
type countingRemover struct {
	removed []uuid.UUID
}

func (r *countingRemover) RemoveStorage(id uuid.UUID) error {
	r.removed = append(r.removed, id)
	return nil
}

func TestHandleEmptyByDefault(t *testing.T) {
	var h storage.LifecycleHandle

	assert.False(t, h.Bound())
	require.NoError(t, h.Reset(), "resetting an empty handle is a no-op")
	assert.Panics(t, func() { h.TorrentID() })
}

func TestHandleBindAndReset(t *testing.T) {
	r := &countingRemover{}
	id := uuid.New()

	var h storage.LifecycleHandle
	h.Bind(id, r)

	assert.True(t, h.Bound())
	assert.Equal(t, id, h.TorrentID())

	require.NoError(t, h.Reset())
	assert.False(t, h.Bound())
	require.Equal(t, []uuid.UUID{id}, r.removed)

	// A second reset must not issue a second request.
	require.NoError(t, h.Reset())
	assert.Len(t, r.removed, 1)
}

func TestHandleCloseEqualsReset(t *testing.T) {
	r := &countingRemover{}
	id := uuid.New()

	var h storage.LifecycleHandle
	h.Bind(id, r)

	require.NoError(t, h.Reset())
	require.NoError(t, h.Close())

	assert.Len(t, r.removed, 1, "reset followed by close must still be one request")
}

func TestHandleMove(t *testing.T) {
	r := &countingRemover{}
	id := uuid.New()

	var h storage.LifecycleHandle
	h.Bind(id, r)

	moved := h.Move()

	assert.False(t, h.Bound(), "moved-from handle must be empty")
	assert.True(t, moved.Bound())
	assert.Equal(t, id, moved.TorrentID())
	assert.Empty(t, r.removed, "moving must not issue a removal")

	require.NoError(t, h.Close())
	assert.Empty(t, r.removed)

	require.NoError(t, moved.Close())
	require.Equal(t, []uuid.UUID{id}, r.removed)
}

func TestHandleRebindResetsPrevious(t *testing.T) {
	r := &countingRemover{}
	first := uuid.New()
	second := uuid.New()

	var h storage.LifecycleHandle
	h.Bind(first, r)
	h.Bind(second, r)

	require.Equal(t, []uuid.UUID{first}, r.removed, "rebinding must tear down the old binding")

	require.NoError(t, h.Close())
	require.Equal(t, []uuid.UUID{first, second}, r.removed)
}

func TestHandleBindNilRemoverPanics(t *testing.T) {
	var h storage.LifecycleHandle

	assert.Panics(t, func() { h.Bind(uuid.New(), nil) })
}
