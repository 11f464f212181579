package port

import "errors"

var (
	// ErrOverflow indicates a non-blocking write was dropped because the
	// TX buffer could not hold the whole payload.
	ErrOverflow = errors.New("tx overflow")
	// ErrWriteTimeout indicates a blocking write did not complete within
	// Config.WriteTimeout.
	ErrWriteTimeout = errors.New("write timeout")
	// ErrInvalidConfig indicates a Config failed validation.
	ErrInvalidConfig = errors.New("invalid config")
)
