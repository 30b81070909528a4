package partfile_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tds/internal/errors"
	"github.com/NamanBalaji/tds/internal/partfile"
)

func newTestFile(t *testing.T, numPieces, pieceSize int) *partfile.File {
	t.Helper()

	pf, err := partfile.New(filepath.Join(t.TempDir(), "data.part"), numPieces, pieceSize)
	require.NoError(t, err)
	t.Cleanup(func() { pf.Close() })

	return pf
}

func TestNewRejectsBadGeometry(t *testing.T) {
	dir := t.TempDir()

	_, err := partfile.New(filepath.Join(dir, "a.part"), 0, 1024)
	require.Error(t, err)
	assert.True(t, errors.Is(err, partfile.ErrInvalidGeometry))
	assert.True(t, errors.IsIOError(err))

	_, err = partfile.New(filepath.Join(dir, "b.part"), 4, -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, partfile.ErrInvalidGeometry))
}

func TestSlotOffsets(t *testing.T) {
	pf := newTestFile(t, 8, 16384)

	hdr := int64(pf.HeaderSize())
	assert.Equal(t, hdr, pf.SlotOffset(0))

	var prev int64 = -1
	for k := 0; k < 8; k++ {
		off := pf.SlotOffset(k)
		assert.Equal(t, int64(k)*16384+hdr, off)
		assert.Greater(t, off, prev, "offsets must be strictly increasing")
		prev = off
	}

	assert.Panics(t, func() { pf.SlotOffset(8) })
	assert.Panics(t, func() { pf.SlotOffset(-1) })
}

func TestWriteReadRoundTrip(t *testing.T) {
	pf := newTestFile(t, 4, 64)

	data := bytes.Repeat([]byte{0xAB}, 64)
	require.NoError(t, pf.WritePiece(2, data))
	assert.True(t, pf.HasPiece(2))

	buf := make([]byte, 64)
	n, err := pf.ReadPiece(2, buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, data, buf)
}

func TestShortFinalPiece(t *testing.T) {
	pf := newTestFile(t, 4, 64)

	short := []byte("tail piece, true byte count")
	require.NoError(t, pf.WritePiece(3, short))

	buf := make([]byte, len(short))
	n, err := pf.ReadPiece(3, buf)
	require.NoError(t, err)
	assert.Equal(t, len(short), n)
	assert.Equal(t, short, buf)
}

func TestBlockwiseStaging(t *testing.T) {
	pf := newTestFile(t, 2, 64)

	// Two 32-byte blocks arriving out of order still land in one slot.
	require.NoError(t, pf.WritePieceAt(1, 32, bytes.Repeat([]byte{0x22}, 32)))
	require.NoError(t, pf.WritePieceAt(1, 0, bytes.Repeat([]byte{0x11}, 32)))

	buf := make([]byte, 64)
	n, err := pf.ReadPiece(1, buf)
	require.NoError(t, err)
	require.Equal(t, 64, n)
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 32), buf[:32])
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 32), buf[32:])

	n, err = pf.ReadPieceAt(1, 32, make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 32, n, "reads are clamped to the slot boundary")

	err = pf.WritePieceAt(0, 40, make([]byte, 32))
	require.Error(t, err, "a write crossing the slot boundary must be rejected")
	assert.True(t, errors.Is(err, partfile.ErrPieceTooLarge))
}

func TestReadAbsentPiece(t *testing.T) {
	pf := newTestFile(t, 4, 64)

	_, err := pf.ReadPiece(1, make([]byte, 64))
	assert.True(t, errors.Is(err, partfile.ErrPieceAbsent))
}

func TestWriteTooLarge(t *testing.T) {
	pf := newTestFile(t, 4, 64)

	err := pf.WritePiece(0, make([]byte, 65))
	require.Error(t, err)
	assert.True(t, errors.Is(err, partfile.ErrPieceTooLarge))

	// Rejected before any slot is allocated, so the error must not claim one.
	var diskErr *errors.DiskError
	require.True(t, errors.As(err, &diskErr))
	assert.Equal(t, -1, diskErr.Slot)
	assert.NotContains(t, diskErr.Error(), "slot")
}

func TestFreePieceRecyclesSlot(t *testing.T) {
	pf := newTestFile(t, 4, 64)

	require.NoError(t, pf.WritePiece(0, []byte("zero")))
	require.NoError(t, pf.WritePiece(1, []byte("one")))

	pf.FreePiece(0)
	assert.False(t, pf.HasPiece(0))

	// Freeing again is a no-op.
	pf.FreePiece(0)

	// The next staged piece reuses the freed slot rather than growing the file.
	require.NoError(t, pf.WritePiece(2, []byte("two")))

	buf := make([]byte, 3)
	n, err := pf.ReadPiece(2, buf)
	require.NoError(t, err)
	assert.Equal(t, "two", string(buf[:n]))
}

func TestReopenRestoresPieceMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.part")

	pf, err := partfile.New(path, 6, 32)
	require.NoError(t, err)

	require.NoError(t, pf.WritePiece(4, []byte("survives reopen")))
	pf.FreePiece(4)
	require.NoError(t, pf.WritePiece(5, []byte("kept")))
	require.NoError(t, pf.Close())

	pf2, err := partfile.New(path, 6, 32)
	require.NoError(t, err)
	defer pf2.Close()

	assert.False(t, pf2.HasPiece(4))
	assert.True(t, pf2.HasPiece(5))

	buf := make([]byte, 4)
	n, err := pf2.ReadPiece(5, buf)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(buf[:n]))
}

func TestReopenRejectsMismatchedGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geom.part")

	pf, err := partfile.New(path, 6, 32)
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	_, err = partfile.New(path, 7, 32)
	require.Error(t, err)
	assert.True(t, errors.Is(err, partfile.ErrBadHeader))
}

func TestRemoveDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.part")

	pf, err := partfile.New(path, 2, 16)
	require.NoError(t, err)
	require.NoError(t, pf.WritePiece(0, []byte("x")))

	require.NoError(t, pf.Remove())

	_, err = partfile.New(path, 2, 16)
	require.NoError(t, err, "removed file must be recreatable from scratch")
}
