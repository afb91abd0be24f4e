package app

import "errors"

var (
	// ErrInvalidBook indicates a request body that cannot map onto book columns.
	ErrInvalidBook = errors.New("invalid book")
)
