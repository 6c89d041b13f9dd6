package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is the malformed-request form of ErrInvalidTransition:
	// the target is not a status at all.
	ErrUnknownStatus = fmt.Errorf("%w: unknown status", ErrInvalidTransition)
)
