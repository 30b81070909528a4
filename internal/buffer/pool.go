package buffer

import (
	"sync"

	"github.com/NamanBalaji/tds/internal/errors"
	"github.com/NamanBalaji/tds/internal/logger"
)

// Allocator supplies and reclaims fixed-size memory blocks used for
// piece-sized I/O buffers. Implementations must be safe for concurrent use;
// every buffer obtained from GetBuffer must eventually be passed back to
// ReturnBuffer exactly once, normally via a Handle.
type Allocator interface {
	GetBuffer() ([]byte, error)
	ReturnBuffer(buf []byte)
	BlockSize() int
}

// Pool is a fixed-block-size Allocator backed by sync.Pool with a cap on the
// number of buffers checked out at once. The cap is what turns unbounded
// producers into back-pressure: once maxBuffers are outstanding, GetBuffer
// fails with a resource error and the producer has to retry on its own
// schedule.
type Pool struct {
	blockSize int
	max       int

	mu          sync.Mutex
	outstanding int

	pool sync.Pool
}

// NewPool creates a buffer pool handing out blocks of blockSize bytes.
// maxBuffers <= 0 means no cap.
func NewPool(blockSize, maxBuffers int) *Pool {
	if blockSize <= 0 {
		panic("buffer: block size must be positive")
	}

	p := &Pool{
		blockSize: blockSize,
		max:       maxBuffers,
	}
	p.pool.New = func() any {
		b := make([]byte, blockSize)
		return &b
	}

	return p
}

// BlockSize returns the fixed size of every buffer this pool hands out.
func (p *Pool) BlockSize() int {
	return p.blockSize
}

// GetBuffer returns a zero-filled-or-recycled block. When the outstanding
// cap is hit it fails with a typed resource error rather than blocking.
func (p *Pool) GetBuffer() ([]byte, error) {
	p.mu.Lock()
	if p.max > 0 && p.outstanding >= p.max {
		p.mu.Unlock()
		logger.Warnf("buffer pool exhausted: %d buffers outstanding", p.max)

		return nil, errors.NewResourceError(errors.ErrBufferExhausted)
	}
	p.outstanding++
	p.mu.Unlock()

	buf := p.pool.Get().(*[]byte)

	return *buf, nil
}

// ReturnBuffer reclaims a block previously obtained from GetBuffer. Passing a
// buffer of the wrong size is caller misuse and panics: recycling a foreign
// buffer would corrupt unrelated I/O once the pool hands it out again.
func (p *Pool) ReturnBuffer(buf []byte) {
	if cap(buf) != p.blockSize {
		panic(ErrWrongSize)
	}

	buf = buf[:p.blockSize]
	p.pool.Put(&buf)

	p.mu.Lock()
	p.outstanding--
	p.mu.Unlock()
}

// Outstanding reports how many buffers are currently checked out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.outstanding
}
