package auction

import "errors"

var (
	// ErrMalformedBid marks a bid that is non-monotonic, degenerate or outside
	// the market domain.
	ErrMalformedBid = errors.New("auction: malformed bid")
	// ErrStateSync marks a device whose state could not be read.
	ErrStateSync = errors.New("auction: device state sync failed")
	// ErrConfiguration marks an invalid market or participant configuration.
	// It is only returned before the first interval runs.
	ErrConfiguration = errors.New("auction: invalid configuration")
	// ErrInvalidTransition is returned when a state machine is driven out of
	// order, e.g. a price applied before a bid was submitted.
	ErrInvalidTransition = errors.New("auction: invalid state transition")
)
