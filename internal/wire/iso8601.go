package wire

import (
	"bytes"
	"time"
)

// ISO8601 decodes a quoted RFC3339 timestamp, the form Bitmex emits on every
// table row. Malformed or absent values zero out rather than failing the
// surrounding frame decode, matching how venues' ad hoc timestamp parsers
// behaved before this type existed -- a single bad timestamp token should not
// drop an otherwise valid batch of rows.
type ISO8601 time.Time

// UnmarshalJSON implements json.Unmarshaler.
func (t *ISO8601) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ISO8601{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, string(trimmed))
	if err != nil {
		*t = ISO8601{}
		return nil
	}
	*t = ISO8601(parsed.UTC())
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t ISO8601) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(time.RFC3339Nano) + `"`), nil
}

// Time returns the decoded value as a time.Time.
func (t ISO8601) Time() time.Time { return time.Time(t) }
