package handler

import "errors"

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
	ErrInvalidTileIndex          = errors.New("z, x and y should be non-negative integers")
)
