package storage

import "errors"

var (
	// ErrNotFound means no record has the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey means the key is already stored. Trade records and
	// price samples are append-only, so a second write is rejected, never merged.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput means a record is nil or misses its key fields.
	ErrInvalidInput = errors.New("invalid record")
)
