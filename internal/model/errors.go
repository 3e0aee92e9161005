package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	// ErrStorageUnavailable marks failures of the on-device store.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
