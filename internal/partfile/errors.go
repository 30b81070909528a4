package partfile

import "errors"

var (
	ErrInvalidGeometry = errors.New("piece count and piece size must be positive")
	ErrPieceAbsent     = errors.New("piece has no slot in the part file")
	ErrBadHeader       = errors.New("part file header does not match expected geometry")
	ErrPieceTooLarge   = errors.New("piece data exceeds the slot size")
)
