// Package jsontime provides time types with compact serialized forms.
//
// Milli encodes as Unix milliseconds in JSON, which is how session and
// transcript documents store timestamps. Duration encodes as a Go duration
// string. Both render as readable strings in YAML output.
package jsontime

import (
	"encoding/json"
	"time"
)

// Milli is a time.Time that serializes to/from Unix milliseconds in JSON.
type Milli time.Time

// NowMilli returns the current time truncated to millisecond precision.
func NowMilli() Milli {
	return FromTime(time.Now())
}

// FromTime converts t, dropping sub-millisecond precision so that values
// survive a JSON round trip unchanged.
func FromTime(t time.Time) Milli {
	return Milli(t.Truncate(time.Millisecond))
}

// Ptr returns a pointer to a Milli for t, for optional fields.
func Ptr(t time.Time) *Milli {
	m := FromTime(t)
	return &m
}

// Time returns the underlying time.Time value.
func (ep Milli) Time() time.Time {
	return time.Time(ep)
}

// Equal reports whether ep and t represent the same time instant.
func (ep Milli) Equal(t Milli) bool {
	return time.Time(ep).Equal(time.Time(t))
}

// IsZero reports whether ep represents the zero time instant.
func (ep Milli) IsZero() bool {
	return time.Time(ep).IsZero()
}

// Sub returns the duration ep-t.
func (ep Milli) Sub(t Milli) time.Duration {
	return time.Time(ep).Sub(time.Time(t))
}

func (ep Milli) String() string {
	return time.Time(ep).Format(time.RFC3339Nano)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ep *Milli) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var t int64
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*ep = Milli(time.UnixMilli(t))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ep Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ep).UnixMilli())
}

// MarshalYAML renders the time as RFC 3339 for human-facing output.
func (ep Milli) MarshalYAML() (any, error) {
	return ep.String(), nil
}
