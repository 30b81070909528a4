// Package disk runs the staging pipeline: producers hand completed blocks to
// QueueWrite, which makes them visible through the overlay cache immediately
// and queues a flush job; an elastic pool of worker goroutines drains the
// queue onto the final files or into a part file, then erases the overlay
// entry and releases the buffer. Erase happens before release, so a reader
// can never observe a buffer the pool has already recycled.
package disk

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/tds/internal/buffer"
	"github.com/NamanBalaji/tds/internal/config"
	"github.com/NamanBalaji/tds/internal/errors"
	"github.com/NamanBalaji/tds/internal/logger"
	"github.com/NamanBalaji/tds/internal/overlay"
	"github.com/NamanBalaji/tds/internal/partfile"
	"github.com/NamanBalaji/tds/internal/repository"
	"github.com/NamanBalaji/tds/internal/storage"
	"github.com/NamanBalaji/tds/internal/workerpool"
)

// job is one pending flush. The job owns the buffer through its handle; the
// overlay cache only holds a view of the same bytes.
type job struct {
	loc    overlay.Location
	handle buffer.Handle
	length int
	toPart bool
	done   func(error)
}

// torrentState is everything the manager tracks per registered torrent.
type torrentState struct {
	mu sync.Mutex

	id        uuid.UUID
	files     *storage.FileStorage // nil for part-file-only torrents
	part      *partfile.File       // lazily created on first staged piece
	numPieces int
	pieceSize int
}

// Manager is the disk subsystem facade. One Manager serves every torrent of
// a session.
type Manager struct {
	cfg   *config.DiskConfig
	alloc buffer.Allocator
	cache *overlay.Cache
	ctrl  *workerpool.Controller
	repo  *repository.BboltRepository // optional

	jobs chan job
	wg   sync.WaitGroup

	mu       sync.Mutex
	torrents map[uuid.UUID]*torrentState
	closed   bool
}

// NewManager creates a disk manager. repo may be nil when staging state does
// not need to survive a restart.
func NewManager(cfg *config.Config, alloc buffer.Allocator, repo *repository.BboltRepository) *Manager {
	return &Manager{
		cfg:      cfg.Disk,
		alloc:    alloc,
		cache:    overlay.NewCache(),
		ctrl:     workerpool.NewController(cfg.Disk.MaxThreads),
		repo:     repo,
		jobs:     make(chan job, cfg.Disk.QueueDepth),
		torrents: make(map[uuid.UUID]*torrentState),
	}
}

// Allocator returns the buffer pool producers should draw from.
func (m *Manager) Allocator() buffer.Allocator {
	return m.alloc
}

// Cache returns the overlay cache, mainly for introspection and tests.
func (m *Manager) Cache() *overlay.Cache {
	return m.cache
}

// SetMaxThreads changes the worker ceiling. Shrinking lets idle workers
// drain off on their own schedule; nothing in flight is preempted.
func (m *Manager) SetMaxThreads(n int) {
	m.ctrl.SetMaxThreads(n)
}

// NumThreads reports the current worker population.
func (m *Manager) NumThreads() int {
	return m.ctrl.NumThreads()
}

// AddTorrent registers a torrent's destination files and returns the
// lifecycle handle that owns its storage teardown. An empty file list is
// valid: every piece then stages into the part file.
func (m *Manager) AddTorrent(id uuid.UUID, baseDir string, specs []storage.FileSpec, numPieces, pieceSize int) (storage.LifecycleHandle, error) {
	var h storage.LifecycleHandle

	if numPieces <= 0 || pieceSize <= 0 {
		return h, errors.NewIOError(partfile.ErrInvalidGeometry, baseDir)
	}

	state := &torrentState{
		id:        id,
		numPieces: numPieces,
		pieceSize: pieceSize,
	}

	if len(specs) > 0 {
		files, err := storage.OpenFileStorage(baseDir, specs)
		if err != nil {
			return h, err
		}

		state.files = files
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		if state.files != nil {
			state.files.Close()
		}

		return h, ErrManagerClosed
	}
	m.torrents[id] = state
	m.mu.Unlock()

	logger.Debugf("registered torrent %s: %d files, %d pieces of %d bytes",
		id, len(specs), numPieces, pieceSize)

	h.Bind(id, m)

	return h, nil
}

// QueueWrite stages a completed block for its final destination file. The
// manager takes ownership of the handle unconditionally: pass it with
// h.Move(). The block is readable through the overlay cache until a worker
// has flushed it. done, if non-nil, runs on the worker goroutine with the
// flush result.
func (m *Manager) QueueWrite(loc overlay.Location, h buffer.Handle, length int, done func(error)) error {
	return m.queue(loc, h, length, false, done)
}

// QueueStage is QueueWrite for blocks whose destination file cannot accept
// them yet; they flush into the torrent's part file instead.
func (m *Manager) QueueStage(loc overlay.Location, h buffer.Handle, length int, done func(error)) error {
	return m.queue(loc, h, length, true, done)
}

func (m *Manager) queue(loc overlay.Location, h buffer.Handle, length int, toPart bool, done func(error)) error {
	if !h.IsValid() {
		panic("disk: queueing an empty buffer handle")
	}

	if length <= 0 || length > len(h.Data()) {
		panic("disk: block length out of range")
	}

	j := job{loc: loc, handle: h.Move(), length: length, toPart: toPart, done: done}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		j.handle.Release()

		return ErrManagerClosed
	}

	if _, ok := m.torrents[loc.Torrent]; !ok {
		m.mu.Unlock()
		j.handle.Release()

		return fmt.Errorf("%w: %s", ErrUnknownTorrent, loc.Torrent)
	}

	m.cache.Insert(loc, j.handle.Data()[:length])

	select {
	case m.jobs <- j:
	default:
		// Full queue is back-pressure, same as an exhausted buffer pool.
		m.cache.Erase(loc)
		m.mu.Unlock()
		j.handle.Release()

		return errors.NewResourceError(ErrQueueFull)
	}

	m.maybeSpawnLocked()
	m.mu.Unlock()

	return nil
}

// maybeSpawnLocked starts a new worker when there is backlog, nobody idle
// and headroom under the ceiling. Caller holds m.mu.
func (m *Manager) maybeSpawnLocked() {
	if m.ctrl.NumIdle() > 0 || m.ctrl.NumThreads() >= m.ctrl.MaxThreads() {
		return
	}

	m.ctrl.ThreadStarted()
	m.wg.Add(1)

	go m.worker()

	logger.Debugf("spawned disk worker, population now %d", m.ctrl.NumThreads())
}

// worker is the disk thread main loop: drain jobs, report idleness, and
// while idle poll ShouldExit so the pool can shrink gracefully.
func (m *Manager) worker() {
	defer m.wg.Done()

	idle := false

	for {
		if !idle {
			select {
			case j, ok := <-m.jobs:
				if !ok {
					m.ctrl.ThreadIdle()
					m.ctrl.ThreadExited()

					return
				}

				m.flush(j)

				continue
			default:
			}

			m.ctrl.ThreadIdle()
			idle = true
		}

		select {
		case j, ok := <-m.jobs:
			if !ok {
				m.ctrl.ThreadExited()
				return
			}

			m.ctrl.ThreadActive()
			idle = false

			m.flush(j)

		case <-time.After(m.cfg.IdlePollEvery):
			if m.ctrl.ShouldExit() {
				m.ctrl.ThreadExited()
				logger.Debugf("disk worker exiting, population now %d", m.ctrl.NumThreads())

				return
			}
		}
	}
}

// flush writes a job out, erases its overlay entry and only then releases
// the buffer. The ordering is the whole point: a concurrent reader holding
// the cache lock can still see valid bytes, and once the entry is gone no
// new reader can reach the buffer we are about to recycle.
func (m *Manager) flush(j job) {
	err := m.writeOut(j)

	// A newer insert at the same location supersedes this job's entry; only
	// the entry this job inserted may be erased, or readers would fall
	// through to disk and see the overwritten bytes.
	m.cache.EraseIf(j.loc, j.handle.Data()[:j.length])
	j.handle.Release()

	if err != nil {
		logger.Errorf("flush of %s piece %d offset %d failed: %v",
			j.loc.Torrent, j.loc.Piece, j.loc.Offset, err)
	}

	if j.done != nil {
		j.done(err)
	}
}

func (m *Manager) writeOut(j job) error {
	m.mu.Lock()
	state := m.torrents[j.loc.Torrent]
	m.mu.Unlock()

	if state == nil {
		// Torrent removed while the job sat in the queue; teardown already
		// dropped the overlay entries, we just retire the buffer.
		logger.Debugf("dropping flush for removed torrent %s", j.loc.Torrent)
		return nil
	}

	data := j.handle.Data()[:j.length]

	if j.toPart || state.files == nil {
		pf, err := state.partFile(m.stagingPath(state.id), m.repo)
		if err != nil {
			return err
		}

		return pf.WritePieceAt(j.loc.Piece, j.loc.Offset, data)
	}

	abs := int64(j.loc.Piece)*int64(state.pieceSize) + int64(j.loc.Offset)

	n, err := state.files.WriteBlock(data, abs)
	if err != nil {
		return err
	}

	if n < len(data) {
		return errors.NewIOError(io.ErrShortWrite, "")
	}

	return nil
}

// ReadBlock serves a read at loc, preferring staged data over what is on
// disk. Reads contained in one staged block are served under the cache lock
// with a single copy; reads spanning a block boundary consult both halves at
// once via GetPair. Reads must not cross a piece boundary.
func (m *Manager) ReadBlock(loc overlay.Location, buf []byte) (int, error) {
	blockSize := m.alloc.BlockSize()
	aOff := loc.Offset - loc.Offset%blockSize
	within := loc.Offset - aOff
	a := overlay.Location{Torrent: loc.Torrent, Piece: loc.Piece, Offset: aOff}

	if within+len(buf) <= blockSize {
		hit := false
		m.cache.Get(a, func(b []byte) {
			if within+len(buf) <= len(b) {
				copy(buf, b[within:within+len(buf)])
				hit = true
			}
		})

		if hit {
			return len(buf), nil
		}

		return m.readDisk(loc, buf)
	}

	b := overlay.Location{Torrent: loc.Torrent, Piece: loc.Piece, Offset: aOff + blockSize}
	firstLen := blockSize - within

	var gotA, gotB bool

	m.cache.GetPair(a, b, func(bufA, bufB []byte) {
		if bufA != nil && within+firstLen <= len(bufA) {
			copy(buf[:firstLen], bufA[within:within+firstLen])
			gotA = true
		}

		if bufB != nil && len(buf)-firstLen <= len(bufB) {
			copy(buf[firstLen:], bufB[:len(buf)-firstLen])
			gotB = true
		}
	})

	switch {
	case gotA && gotB:
		return len(buf), nil
	case gotA:
		n, err := m.readDisk(overlay.Location{Torrent: loc.Torrent, Piece: loc.Piece, Offset: loc.Offset + firstLen}, buf[firstLen:])
		return firstLen + n, err
	case gotB:
		n, err := m.readDisk(loc, buf[:firstLen])
		if err != nil || n < firstLen {
			return n, err
		}

		return len(buf), nil
	default:
		return m.readDisk(loc, buf)
	}
}

// readDisk is the overlay-miss path: the part file wins for pieces staged
// there, otherwise the final files are consulted.
func (m *Manager) readDisk(loc overlay.Location, buf []byte) (int, error) {
	m.mu.Lock()
	state := m.torrents[loc.Torrent]
	m.mu.Unlock()

	if state == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTorrent, loc.Torrent)
	}

	state.mu.Lock()
	pf := state.part
	state.mu.Unlock()

	if pf != nil && pf.HasPiece(loc.Piece) {
		return pf.ReadPieceAt(loc.Piece, loc.Offset, buf)
	}

	if state.files != nil {
		abs := int64(loc.Piece)*int64(state.pieceSize) + int64(loc.Offset)
		return state.files.ReadBlock(buf, abs)
	}

	return 0, partfile.ErrPieceAbsent
}

// RemoveStorage drops every trace of a torrent: overlay entries, the part
// file, the destination file descriptors and the registry row. Idempotent;
// invoked by the torrent's LifecycleHandle exactly once per binding.
func (m *Manager) RemoveStorage(id uuid.UUID) error {
	m.mu.Lock()
	state, ok := m.torrents[id]
	delete(m.torrents, id)
	m.mu.Unlock()

	if dropped := m.cache.DropTorrent(id); dropped > 0 {
		logger.Debugf("dropped %d staged entries for torrent %s", dropped, id)
	}

	if !ok {
		return nil
	}

	var g errgroup.Group

	state.mu.Lock()
	pf := state.part
	state.part = nil
	state.mu.Unlock()

	if pf != nil {
		g.Go(pf.Remove)
	}

	if state.files != nil {
		g.Go(state.files.Close)
	}

	err := g.Wait()

	if m.repo != nil {
		if derr := m.repo.DeletePartFile(id); derr != nil {
			logger.Errorf("failed to delete part file record for %s: %v", id, derr)
		}
	}

	logger.Infof("removed storage for torrent %s", id)

	return err
}

// Close stops accepting work, drains the queue, waits for every worker to
// exit and closes all remaining torrent state. Part files are flushed and
// kept so a later session can resume from them.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}

	m.closed = true
	m.mu.Unlock()

	close(m.jobs)
	m.wg.Wait()

	// Retire anything still queued; possible when the thread ceiling was
	// zero or the pool shrank to nothing before the queue drained.
	for j := range m.jobs {
		m.cache.EraseIf(j.loc, j.handle.Data()[:j.length])
		j.handle.Release()

		if j.done != nil {
			j.done(ErrManagerClosed)
		}
	}

	m.mu.Lock()
	states := make([]*torrentState, 0, len(m.torrents))
	for _, st := range m.torrents {
		states = append(states, st)
	}
	m.torrents = make(map[uuid.UUID]*torrentState)
	m.mu.Unlock()

	var g errgroup.Group

	for _, st := range states {
		g.Go(st.close)
	}

	return g.Wait()
}

// stagingPath is where a torrent's part file lives.
func (m *Manager) stagingPath(id uuid.UUID) string {
	return filepath.Join(m.cfg.StagingDir, id.String()+".part")
}

// partFile returns the torrent's part file, creating it (and registering it
// for resume) on first use.
func (s *torrentState) partFile(path string, repo *repository.BboltRepository) (*partfile.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.part != nil {
		return s.part, nil
	}

	pf, err := partfile.New(path, s.numPieces, s.pieceSize)
	if err != nil {
		return nil, err
	}

	s.part = pf

	if repo != nil {
		err := repo.SavePartFile(repository.PartFileRecord{
			TorrentID: s.id,
			Path:      path,
			NumPieces: s.numPieces,
			PieceSize: s.pieceSize,
		})
		if err != nil {
			logger.Errorf("failed to register part file for %s: %v", s.id, err)
		}
	}

	return pf, nil
}

func (s *torrentState) close() error {
	var g errgroup.Group

	s.mu.Lock()
	pf := s.part
	s.part = nil
	s.mu.Unlock()

	if pf != nil {
		g.Go(pf.Close)
	}

	if s.files != nil {
		g.Go(s.files.Close)
	}

	return g.Wait()
}
