package particles

import "errors"

var (
	// ErrInvalidParameter indicates a construction or step argument outside
	// its accepted range.
	ErrInvalidParameter = errors.New("particles: invalid parameter")

	// ErrStoreFailed indicates an earlier device failure left the store in an
	// unspecified state. The store must be rebuilt.
	ErrStoreFailed = errors.New("particles: store failed and must be reconstructed")

	// ErrClosed indicates use of a store after Close.
	ErrClosed = errors.New("particles: store closed")
)
