package storage

import (
	"github.com/google/uuid"

	"github.com/NamanBalaji/tds/internal/logger"
)

// Remover is the narrow slice of the disk subsystem a lifecycle handle
// needs: the ability to drop every piece of staging state for a torrent.
type Remover interface {
	RemoveStorage(id uuid.UUID) error
}

// LifecycleHandle couples a torrent to the disk subsystem for the lifetime
// of its storage. However the torrent goes away — explicit removal, error
// abort, normal completion — the handle guarantees the "remove storage"
// request is issued exactly once.
//
// Handles must not be copied: two copies would each issue a removal for the
// same torrent. Transfer ownership with Move.
type LifecycleHandle struct {
	id      uuid.UUID
	remover Remover
}

// Bind attaches the handle to a torrent and a disk subsystem. A previous
// binding is reset (and its removal issued) first.
func (h *LifecycleHandle) Bind(id uuid.UUID, remover Remover) {
	if remover == nil {
		panic("storage: bind with nil remover")
	}

	if err := h.Reset(); err != nil {
		logger.Errorf("storage removal for %s failed during rebind: %v", h.id, err)
	}

	h.id = id
	h.remover = remover
}

// Bound reports whether the handle currently owns a storage binding.
func (h *LifecycleHandle) Bound() bool {
	return h.remover != nil
}

// TorrentID returns the bound torrent identifier. Calling it on an empty
// handle is caller misuse and panics.
func (h *LifecycleHandle) TorrentID() uuid.UUID {
	if h.remover == nil {
		panic("storage: TorrentID on an unbound handle")
	}

	return h.id
}

// Reset issues the removal request for the bound torrent and empties the
// handle. Idempotent: resetting an empty handle does nothing and a second
// call never produces a second request.
func (h *LifecycleHandle) Reset() error {
	if h.remover == nil {
		return nil
	}

	remover := h.remover
	id := h.id
	h.remover = nil
	h.id = uuid.Nil

	return remover.RemoveStorage(id)
}

// Close makes the handle usable with defer; it is equivalent to Reset.
func (h *LifecycleHandle) Close() error {
	return h.Reset()
}

// Move transfers the binding to the returned handle and empties the receiver
// without issuing a removal.
func (h *LifecycleHandle) Move() LifecycleHandle {
	moved := LifecycleHandle{id: h.id, remover: h.remover}
	h.id = uuid.Nil
	h.remover = nil

	return moved
}
