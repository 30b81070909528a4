// Package partfile implements the auxiliary on-disk store for piece data
// that cannot yet be written to its final destination file, e.g. pieces
// shared with files the user excluded from download. The byte layout is a
// fixed metadata header followed by equally sized slots, one per staged
// piece. Slots are allocated on first write and recycled when a piece
// migrates to its real file.
package partfile

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/NamanBalaji/tds/internal/errors"
	"github.com/NamanBalaji/tds/internal/logger"
)

const (
	headerMagic  = "TDSPART1"
	headerAlign  = 512
	fixedPrefix  = len(headerMagic) + 8 // magic + numPieces + pieceSize
	noSlot       = -1
	filePermMode = 0o644
)

// File is a partial-piece file. All methods are safe for concurrent use.
type File struct {
	mu sync.Mutex

	path       string
	f          *os.File
	numPieces  int
	pieceSize  int
	headerSize int

	slots     []int // piece index -> slot, noSlot when absent
	freeSlots []int
	slotsUsed int
	dirty     bool
}

// New creates or reopens the part file at path, sized for numPieces slots of
// pieceSize bytes each. An existing file must carry a matching header.
func New(path string, numPieces, pieceSize int) (*File, error) {
	if numPieces <= 0 || pieceSize <= 0 {
		return nil, errors.NewIOError(ErrInvalidGeometry, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewIOError(err, path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePermMode)
	if err != nil {
		return nil, errors.NewIOError(err, path)
	}

	pf := &File{
		path:       path,
		f:          f,
		numPieces:  numPieces,
		pieceSize:  pieceSize,
		headerSize: headerSizeFor(numPieces),
		slots:      make([]int, numPieces),
	}
	for i := range pf.slots {
		pf.slots[i] = noSlot
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewIOError(err, path)
	}

	if stat.Size() == 0 {
		if err := pf.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}

		logger.Debugf("created part file %s: %d slots of %d bytes, header %d bytes",
			path, numPieces, pieceSize, pf.headerSize)

		return pf, nil
	}

	if err := pf.readHeader(); err != nil {
		f.Close()
		return nil, err
	}

	logger.Debugf("reopened part file %s: %d of %d slots in use", path, pf.slotsUsed, numPieces)

	return pf, nil
}

// headerSizeFor returns the metadata region size for a piece count, rounded
// up so slot 0 starts on an aligned boundary.
func headerSizeFor(numPieces int) int {
	raw := fixedPrefix + 4*numPieces
	return (raw + headerAlign - 1) / headerAlign * headerAlign
}

// NumPieces returns the number of slots the file was sized for.
func (pf *File) NumPieces() int {
	return pf.numPieces
}

// PieceSize returns the fixed slot size in bytes.
func (pf *File) PieceSize() int {
	return pf.pieceSize
}

// HeaderSize returns the size of the reserved metadata region.
func (pf *File) HeaderSize() int {
	return pf.headerSize
}

// Path returns the filesystem path of the part file.
func (pf *File) Path() string {
	return pf.path
}

// SlotOffset returns the byte offset of a slot: slot*pieceSize + headerSize.
// Pure computation; an out-of-range slot is caller misuse and panics.
func (pf *File) SlotOffset(slot int) int64 {
	if slot < 0 || slot >= pf.numPieces {
		panic("partfile: slot out of range")
	}

	return int64(slot)*int64(pf.pieceSize) + int64(pf.headerSize)
}

// WritePiece stores data for a whole piece, allocating a slot on first
// write. Callers pass the true byte count: the final piece of a torrent may
// be shorter than a full slot.
func (pf *File) WritePiece(piece int, data []byte) error {
	return pf.WritePieceAt(piece, 0, data)
}

// WritePieceAt stores data at a byte offset within a piece's slot, so
// pieces can be staged block by block as they arrive. The slot is allocated
// on the first write at any offset.
func (pf *File) WritePieceAt(piece, off int, data []byte) error {
	if piece < 0 || piece >= pf.numPieces {
		panic("partfile: piece out of range")
	}

	if off < 0 || off+len(data) > pf.pieceSize {
		// No slot is involved yet; the piece may not even have one.
		return errors.NewContractError(ErrPieceTooLarge, pf.path)
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	slot := pf.slots[piece]
	if slot == noSlot {
		slot = pf.allocSlot()
		pf.slots[piece] = slot
		pf.dirty = true
	}

	if _, err := pf.f.WriteAt(data, pf.SlotOffset(slot)+int64(off)); err != nil {
		return errors.NewSlotError(err, pf.path, slot)
	}

	return nil
}

// ReadPiece reads a piece's staged bytes into buf and returns the byte
// count. A piece without a slot yields ErrPieceAbsent; that is the normal
// fall-through signal, not a failure.
func (pf *File) ReadPiece(piece int, buf []byte) (int, error) {
	return pf.ReadPieceAt(piece, 0, buf)
}

// ReadPieceAt reads staged bytes starting at a byte offset within a piece's
// slot.
func (pf *File) ReadPieceAt(piece, off int, buf []byte) (int, error) {
	if piece < 0 || piece >= pf.numPieces {
		panic("partfile: piece out of range")
	}

	if off < 0 || off >= pf.pieceSize {
		panic("partfile: offset out of range")
	}

	if off+len(buf) > pf.pieceSize {
		buf = buf[:pf.pieceSize-off]
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	slot := pf.slots[piece]
	if slot == noSlot {
		return 0, ErrPieceAbsent
	}

	n, err := pf.f.ReadAt(buf, pf.SlotOffset(slot)+int64(off))
	if err != nil && err != io.EOF {
		return n, errors.NewSlotError(err, pf.path, slot)
	}

	return n, nil
}

// FreePiece releases a piece's slot for reuse, typically after the piece has
// been migrated to its final file. Freeing an unstaged piece is a no-op.
func (pf *File) FreePiece(piece int) {
	if piece < 0 || piece >= pf.numPieces {
		panic("partfile: piece out of range")
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	slot := pf.slots[piece]
	if slot == noSlot {
		return
	}

	pf.slots[piece] = noSlot
	pf.freeSlots = append(pf.freeSlots, slot)
	pf.dirty = true
}

// HasPiece reports whether a piece currently occupies a slot.
func (pf *File) HasPiece(piece int) bool {
	if piece < 0 || piece >= pf.numPieces {
		panic("partfile: piece out of range")
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	return pf.slots[piece] != noSlot
}

// Flush persists the piece map to the header if it changed since the last
// flush.
func (pf *File) Flush() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if !pf.dirty {
		return nil
	}

	return pf.writeHeaderLocked()
}

// Close flushes the header and closes the file. The file is not deleted;
// its lifecycle belongs to the torrent's storage teardown.
func (pf *File) Close() error {
	if err := pf.Flush(); err != nil {
		pf.f.Close()
		return err
	}

	if err := pf.f.Close(); err != nil {
		return errors.NewIOError(err, pf.path)
	}

	return nil
}

// Remove closes the part file and deletes it from disk.
func (pf *File) Remove() error {
	pf.f.Close()

	if err := os.Remove(pf.path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError(err, pf.path)
	}

	return nil
}

// allocSlot hands out the lowest free slot, preferring recycled ones.
// Caller holds pf.mu.
func (pf *File) allocSlot() int {
	if n := len(pf.freeSlots); n > 0 {
		slot := pf.freeSlots[n-1]
		pf.freeSlots = pf.freeSlots[:n-1]

		return slot
	}

	slot := pf.slotsUsed
	pf.slotsUsed++

	return slot
}

func (pf *File) writeHeader() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	return pf.writeHeaderLocked()
}

// writeHeaderLocked serializes magic, geometry and the piece map into the
// reserved region. Caller holds pf.mu.
func (pf *File) writeHeaderLocked() error {
	hdr := make([]byte, pf.headerSize)
	copy(hdr, headerMagic)
	binary.BigEndian.PutUint32(hdr[len(headerMagic):], uint32(pf.numPieces))
	binary.BigEndian.PutUint32(hdr[len(headerMagic)+4:], uint32(pf.pieceSize))

	for i, slot := range pf.slots {
		binary.BigEndian.PutUint32(hdr[fixedPrefix+4*i:], uint32(int32(slot)))
	}

	if _, err := pf.f.WriteAt(hdr, 0); err != nil {
		return errors.NewIOError(err, pf.path)
	}

	pf.dirty = false

	return nil
}

// readHeader loads and validates the header of an existing part file and
// rebuilds the slot bookkeeping from the piece map.
func (pf *File) readHeader() error {
	hdr := make([]byte, pf.headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(pf.f, 0, int64(pf.headerSize)), hdr); err != nil {
		return errors.NewIOError(err, pf.path)
	}

	if string(hdr[:len(headerMagic)]) != headerMagic {
		return errors.NewIOError(ErrBadHeader, pf.path)
	}

	gotPieces := int(binary.BigEndian.Uint32(hdr[len(headerMagic):]))
	gotSize := int(binary.BigEndian.Uint32(hdr[len(headerMagic)+4:]))

	if gotPieces != pf.numPieces || gotSize != pf.pieceSize {
		return errors.NewIOError(ErrBadHeader, pf.path)
	}

	used := make(map[int]bool, pf.numPieces)

	for i := range pf.slots {
		slot := int(int32(binary.BigEndian.Uint32(hdr[fixedPrefix+4*i:])))
		pf.slots[i] = slot

		if slot != noSlot {
			used[slot] = true
			if slot >= pf.slotsUsed {
				pf.slotsUsed = slot + 1
			}
		}
	}

	// Gaps below the high-water mark are reusable.
	for s := 0; s < pf.slotsUsed; s++ {
		if !used[s] {
			pf.freeSlots = append(pf.freeSlots, s)
		}
	}

	return nil
}
