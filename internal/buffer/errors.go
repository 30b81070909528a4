package buffer

import "errors"

var (
	ErrWrongSize = errors.New("buffer does not match the pool block size")
)
