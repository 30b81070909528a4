package buffer

// Handle owns exactly one allocator-supplied buffer and guarantees it is
// returned to its allocator exactly once. Ownership must stay unique at all
// times: the pool reuses memory, so a double release or use-after-release
// corrupts unrelated data.
//
// Handles must not be copied. Transfer ownership with Move; a moved-from
// handle is empty and safe to Release or reuse. The overlay cache may hold a
// non-owning view of the same bytes, which is safe only because callers erase
// the cache entry before releasing the handle.
type Handle struct {
	alloc Allocator
	buf   []byte
}

// NewHandle acquires a fresh buffer from alloc and wraps it.
func NewHandle(alloc Allocator) (Handle, error) {
	buf, err := alloc.GetBuffer()
	if err != nil {
		return Handle{}, err
	}

	return Handle{alloc: alloc, buf: buf}, nil
}

// Acquire takes ownership of an allocator-supplied buffer. A previously held
// buffer is released first so the handle never leaks.
func (h *Handle) Acquire(alloc Allocator, buf []byte) {
	if alloc == nil {
		panic("buffer: acquire with nil allocator")
	}

	h.Release()

	h.alloc = alloc
	h.buf = buf
}

// Data returns the owned buffer, or nil when the handle is empty. The slice
// is only valid while the handle lives.
func (h *Handle) Data() []byte {
	return h.buf
}

// IsValid reports whether the handle currently owns a buffer.
func (h *Handle) IsValid() bool {
	return h.buf != nil
}

// Release returns the buffer to its allocator and empties the handle.
// Idempotent: releasing an empty handle is a no-op. Callers typically
// `defer h.Release()` right after acquiring.
func (h *Handle) Release() {
	if h.buf == nil {
		return
	}

	h.alloc.ReturnBuffer(h.buf)
	h.alloc = nil
	h.buf = nil
}

// Move transfers ownership to the returned handle and empties the receiver.
func (h *Handle) Move() Handle {
	moved := Handle{alloc: h.alloc, buf: h.buf}
	h.alloc = nil
	h.buf = nil

	return moved
}
