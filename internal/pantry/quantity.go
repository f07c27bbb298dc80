// Parses persisted quantity fields into an explicit absent/valid/malformed value.

package pantry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

type quantityState uint8

const (
	stateAbsent quantityState = iota
	stateValid
	stateMalformed
)

// StoredQuantity is the quantity of an item as found in the store.
//
// The zero value is Absent: no record exists for the item.
type StoredQuantity struct {
	state quantityState
	value int64
	raw   string
}

// Absent returns the quantity of an item that has no record.
func Absent() StoredQuantity {
	return StoredQuantity{}
}

// Valid returns a well-formed quantity. Negative values are malformed.
func Valid(n int64) StoredQuantity {
	if n < 0 {
		return Malformed(strconv.FormatInt(n, 10))
	}
	return StoredQuantity{state: stateValid, value: n}
}

// Malformed returns a quantity whose stored representation is not a
// non-negative integer. raw is kept for logging.
func Malformed(raw string) StoredQuantity {
	return StoredQuantity{state: stateMalformed, raw: raw}
}

// ParseQuantity parses the raw JSON value of a record's quantity field.
//
// An empty raw value means the record exists without a quantity field, which
// is malformed. Integral numbers such as 2.0 are accepted.
func ParseQuantity(raw json.RawMessage) StoredQuantity {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Malformed("")
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return Malformed(string(raw))
	}
	n, ok := v.(json.Number)
	if !ok {
		return Malformed(string(raw))
	}
	if i, err := n.Int64(); err == nil {
		return Valid(i)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < 0 || f >= math.MaxInt64 {
		return Malformed(string(raw))
	}
	return Valid(int64(f))
}

// IsAbsent reports whether no record exists.
func (q StoredQuantity) IsAbsent() bool {
	return q.state == stateAbsent
}

// IsValid reports whether the record holds a non-negative integer.
func (q StoredQuantity) IsValid() bool {
	return q.state == stateValid
}

// IsMalformed reports whether the record exists but its quantity is unusable.
func (q StoredQuantity) IsMalformed() bool {
	return q.state == stateMalformed
}

// Value returns the quantity and true when valid.
func (q StoredQuantity) Value() (int64, bool) {
	return q.value, q.state == stateValid
}

// Raw returns the original representation of a malformed quantity.
func (q StoredQuantity) Raw() string {
	return q.raw
}

func (q StoredQuantity) String() string {
	switch q.state {
	case stateValid:
		return strconv.FormatInt(q.value, 10)
	case stateMalformed:
		return "malformed(" + q.raw + ")"
	default:
		return "absent"
	}
}
