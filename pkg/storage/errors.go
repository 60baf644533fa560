package storage

import "errors"

var (
	ErrInvalidPartition = errors.New("invalid partition")
	ErrInvalidLayout    = errors.New("invalid partition layout")
	ErrClosed           = errors.New("storage closed")
)
