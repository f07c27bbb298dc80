// Package pantry holds the pantry domain: quantity reconciliation and the
// list view served to clients.
//
// The reconciler is pure. It receives the current state of one item and a
// requested mutation, and returns the next state for the caller to persist.
// It never keeps state between calls.
package pantry

import (
	"errors"
	"fmt"
	"math"
)

// ProtectedItem is the item name that can never be decremented.
const ProtectedItem = "boxes"

// ErrInvalidArgument is returned when the reconciler is called with a request
// the caller should have rejected.
var ErrInvalidArgument = errors.New("invalid argument")

// Action is what the caller must do to the persisted record.
type Action uint8

const (
	// NoOp leaves the record untouched.
	NoOp Action = iota
	// Set writes Decision.Quantity.
	Set
	// Delete removes the record.
	Delete
)

func (a Action) String() string {
	switch a {
	case Set:
		return "set"
	case Delete:
		return "delete"
	default:
		return "noop"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Reason explains a NoOp or Delete decision.
type Reason string

const (
	// ReasonNotFound means there was nothing to decrement.
	ReasonNotFound Reason = "not_found"
	// ReasonProtected means the item is ProtectedItem.
	ReasonProtected Reason = "protected"
	// ReasonMalformed means the stored quantity was not a valid number.
	ReasonMalformed Reason = "malformed"
	// ReasonExhausted means the quantity would have dropped to zero or below.
	ReasonExhausted Reason = "exhausted"
)

// Decision is the reconciler's output for one item.
type Decision struct {
	Action   Action `json:"action"`
	Quantity int64  `json:"quantity,omitempty"`
	Reason   Reason `json:"reason,omitempty"`
}

// ApplyIncrement returns the quantity to persist after adding delta.
//
// A malformed stored quantity is replaced by delta.
func ApplyIncrement(current StoredQuantity, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("%w: increment must be positive, got %d", ErrInvalidArgument, delta)
	}
	q, ok := current.Value()
	if !ok {
		return delta, nil
	}
	if q > math.MaxInt64-delta {
		return 0, fmt.Errorf("%w: quantity %d + %d overflows", ErrInvalidArgument, q, delta)
	}
	return q + delta, nil
}

// ApplyDecrement returns what to do with the record named name when one unit
// is removed.
func ApplyDecrement(current StoredQuantity, name string) Decision {
	if name == ProtectedItem {
		return Decision{Action: NoOp, Reason: ReasonProtected}
	}
	if current.IsAbsent() {
		return Decision{Action: NoOp, Reason: ReasonNotFound}
	}
	q, ok := current.Value()
	if !ok {
		return Decision{Action: Delete, Reason: ReasonMalformed}
	}
	if q <= 1 {
		return Decision{Action: Delete, Reason: ReasonExhausted}
	}
	return Decision{Action: Set, Quantity: q - 1}
}
