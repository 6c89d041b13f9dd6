package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusReceived            Status = "RECEIVED"
	StatusDelivered           Status = "DELIVERED"
	StatusCancelled           Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingVerification: {StatusReceived: true, StatusCancelled: true},
	StatusReceived:            {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:           {},
	StatusCancelled:           {},
}

// ParseStatus accepts the canonical form as well as the camel-case names used
// by the operator console ("pendingVerification", "received", ...).
func ParseStatus(s string) (Status, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	if norm == "PENDINGVERIFICATION" {
		norm = string(StatusPendingVerification)
	}
	st := Status(norm)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// CheckTransition returns ErrInvalidTransition when to is not reachable from
// from. Requesting the current status is accepted as a replay.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownStatus, to)
	}
	if from == to || CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: order is already %s", ErrInvalidTransition, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
