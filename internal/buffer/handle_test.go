package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tds/internal/buffer"
)

// mockAllocator counts reclaim calls and records the exact buffers returned.
type mockAllocator struct {
	blockSize int
	gets      int
	returns   int
	returned  [][]byte
}

func newMockAllocator(blockSize int) *mockAllocator {
	return &mockAllocator{blockSize: blockSize}
}

func (m *mockAllocator) GetBuffer() ([]byte, error) {
	m.gets++
	return make([]byte, m.blockSize), nil
}

func (m *mockAllocator) ReturnBuffer(buf []byte) {
	m.returns++
	m.returned = append(m.returned, buf)
}

func (m *mockAllocator) BlockSize() int {
	return m.blockSize
}

func TestHandleEmptyByDefault(t *testing.T) {
	var h buffer.Handle

	assert.False(t, h.IsValid())
	assert.Nil(t, h.Data())

	// Releasing an empty handle is a no-op.
	h.Release()
	assert.False(t, h.IsValid())
}

func TestHandleAcquireAndRelease(t *testing.T) {
	alloc := newMockAllocator(64)
	buf, err := alloc.GetBuffer()
	require.NoError(t, err)

	var h buffer.Handle
	h.Acquire(alloc, buf)

	assert.True(t, h.IsValid())
	assert.Same(t, &buf[0], &h.Data()[0], "handle must expose the exact acquired buffer")

	h.Release()

	assert.False(t, h.IsValid())
	require.Equal(t, 1, alloc.returns)
	assert.Same(t, &buf[0], &alloc.returned[0][0], "the exact buffer must be reclaimed")

	// Second release must not reclaim again.
	h.Release()
	assert.Equal(t, 1, alloc.returns)
}

func TestHandleAcquireReleasesPrevious(t *testing.T) {
	alloc := newMockAllocator(64)
	first, _ := alloc.GetBuffer()
	second, _ := alloc.GetBuffer()

	var h buffer.Handle
	h.Acquire(alloc, first)
	h.Acquire(alloc, second)

	require.Equal(t, 1, alloc.returns, "acquiring over a held buffer must release it")
	assert.Same(t, &first[0], &alloc.returned[0][0])
	assert.Same(t, &second[0], &h.Data()[0])
}

func TestHandleMove(t *testing.T) {
	alloc := newMockAllocator(64)
	buf, _ := alloc.GetBuffer()

	var h buffer.Handle
	h.Acquire(alloc, buf)

	moved := h.Move()

	assert.False(t, h.IsValid(), "moved-from handle must be empty")
	assert.True(t, moved.IsValid())
	assert.Same(t, &buf[0], &moved.Data()[0], "move target must report the original buffer")

	// Releasing the moved-from handle must not touch the allocator.
	h.Release()
	assert.Equal(t, 0, alloc.returns)

	moved.Release()
	assert.Equal(t, 1, alloc.returns)
}

func TestHandleAcquireNilAllocatorPanics(t *testing.T) {
	var h buffer.Handle

	assert.Panics(t, func() { h.Acquire(nil, make([]byte, 8)) })
}

func TestNewHandle(t *testing.T) {
	alloc := newMockAllocator(32)

	h, err := buffer.NewHandle(alloc)
	require.NoError(t, err)
	require.True(t, h.IsValid())
	assert.Len(t, h.Data(), 32)

	h.Release()
	assert.Equal(t, 1, alloc.returns)
}
