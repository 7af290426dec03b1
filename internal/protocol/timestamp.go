package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// NaiveLayout is the ISO-8601 datetime layout without a zone designator.
// Fractional seconds are written only when non-zero.
const NaiveLayout = "2006-01-02T15:04:05.999999999"

// NaiveTime is a timestamp serialised without zone information. Values are
// always written in UTC and read back as UTC.
type NaiveTime struct {
	time.Time
}

// NewNaiveTime converts t to UTC.
func NewNaiveTime(t time.Time) NaiveTime {
	return NaiveTime{Time: t.UTC()}
}

// Now returns the current time as a NaiveTime.
func Now() NaiveTime {
	return NewNaiveTime(time.Now())
}

// MarshalJSON implements json.Marshaler.
func (t NaiveTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(NaiveLayout))
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves t unchanged.
func (t *NaiveTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}

	parsed, err := ParseNaiveTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseNaiveTime accepts the naive layout (with or without fractional
// seconds) and falls back to RFC 3339 for clients that send a zone.
func ParseNaiveTime(value string) (NaiveTime, error) {
	if parsed, err := time.ParseInLocation(NaiveLayout, value, time.UTC); err == nil {
		return NaiveTime{Time: parsed}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return NaiveTime{}, fmt.Errorf("created_at: unrecognised datetime %q", value)
	}
	return NewNaiveTime(parsed), nil
}
