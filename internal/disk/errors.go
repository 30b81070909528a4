package disk

import "errors"

var (
	ErrManagerClosed  = errors.New("disk manager is shut down")
	ErrUnknownTorrent = errors.New("torrent has no registered storage")
	ErrQueueFull      = errors.New("disk job queue is full (producer must back off)")
)
