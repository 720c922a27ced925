package interchange

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Older exports were written by hand-edited tools, so scalar fields arrive
// as strings, numbers or null. These types absorb that on decode.

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexNumber accepts numbers, numeric strings, booleans and null.
// Anything that does not parse is 0.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = 0
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			*n = flexNumber(v)
		}
	case 't':
		*n = 1
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v float64
		if err := json.Unmarshal(b, &v); err == nil {
			*n = flexNumber(v)
		}
	}
	return nil
}

// flexBool booleanizes any JSON scalar. Strings that parse as booleans keep
// their meaning; other non-empty strings and non-zero numbers are true.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = false
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case 't':
		*f = true
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		str = strings.TrimSpace(str)
		if v, err := strconv.ParseBool(str); err == nil {
			*f = flexBool(v)
			return nil
		}
		*f = flexBool(str != "")
	case '{', '[':
		*f = true
	case 'f', 'n':
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err == nil {
			*f = flexBool(v != 0)
		}
	}
	return nil
}

// flexTime accepts an RFC 3339 string or epoch milliseconds. Unparseable
// values decode to the zero time.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = flexTime(time.Time{})
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(str)); err == nil {
			*t = flexTime(parsed.UTC())
		}
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err == nil && ms > 0 {
		*t = flexTime(time.UnixMilli(int64(ms)).UTC())
	}
	return nil
}
