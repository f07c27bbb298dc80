package storage

import (
	"encoding/json"
	"math"
	"time"
)

// Time is a point in time stored as whole unix seconds. 0 means unset.
type Time int64

func Now() Time { return ToTime(time.Now()) }

func ToTime(v time.Time) Time { return Time(v.Unix()) }

// AsTime converts back in UTC, so formatting is independent of the host zone.
func (t Time) AsTime() time.Time { return time.Unix(int64(t), 0).UTC() }

func (t Time) IsZero() bool { return t == 0 }

func (t Time) Before(u Time) bool { return t < u }

func (t Time) After(u Time) bool { return t > u }

// UnmarshalJSON accepts fractional seconds, as written by some older rows,
// and rounds them.
func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f json.Number
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if i, err := f.Int64(); err == nil {
		*t = Time(i)
		return nil
	}
	v, err := f.Float64()
	if err != nil {
		return err
	}
	*t = Time(math.Round(v))
	return nil
}
