package tiling

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLod       = errors.New("invalid level of detail")
	ErrOutOfBounds      = errors.New("point is outside of the pyramid bounds")
	ErrFetchFailed      = errors.New("tile fetch failed")
	ErrTimeout          = errors.New("tile fetch timed out")
	ErrDecodeFailed     = errors.New("tile decode failed")
	ErrCacheWriteFailed = errors.New("tile cache write failed")
)

// TileError records the failure kind for one tile together with its cause.
// errors.Is matches the kind, errors.Unwrap returns the cause.
type TileError struct {
	Kind  error
	Index TileIndex
	Err   error
}

func NewTileError(kind error, index TileIndex, err error) *TileError {
	return &TileError{
		Kind:  kind,
		Index: index,
		Err:   err,
	}
}

func (e *TileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tile %s: %v", e.Index, e.Kind)
	}
	return fmt.Sprintf("tile %s: %v: %v", e.Index, e.Kind, e.Err)
}

func (e *TileError) Is(target error) bool {
	return target == e.Kind
}

func (e *TileError) Unwrap() error {
	return e.Err
}
