package paste

import "errors"

var (
	ErrNoImage          = errors.New("paste carries no image")
	ErrMissingExtension = errors.New("image extension not found")
	ErrCancelled        = errors.New("paste cancelled")
)
