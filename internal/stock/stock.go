// Package stock classifies inventory items against low-stock thresholds.
//
// Items are read as stored by the mobile client, so quantities and per-item
// thresholds are loosely typed and parsed leniently.
package stock

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultGlobalThreshold applies when a user has no global threshold stored.
const DefaultGlobalThreshold = 5

// Status is the stock classification of a single item.
type Status int

const (
	OK Status = iota
	Low
	Out
)

func (s Status) String() string {
	switch s {
	case Low:
		return "low"
	case Out:
		return "out"
	default:
		return "ok"
	}
}

// Number is a loosely typed numeric field: a JSON number, a numeric string,
// an empty string, null, or absent. The zero value is absent.
type Number struct {
	raw string
	set bool
}

// NumberOf returns a Number holding n.
func NumberOf(n int) Number {
	return Number{raw: strconv.Itoa(n), set: true}
}

// ParseNumber wraps raw text as a Number. Empty text is treated as absent.
func ParseNumber(raw string) Number {
	raw = strings.TrimSpace(raw)
	return Number{raw: raw, set: raw != ""}
}

// UnmarshalJSON never fails: anything that is not a number or string is
// recorded as present but unparsable.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			*n = Number{raw: string(b), set: true}
			return nil
		}
		*n = ParseNumber(s)
		return nil
	}
	*n = Number{raw: string(b), set: true}
	return nil
}

// MarshalJSON writes the parsed integer, or null when absent.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(n.Int())), nil
}

// Present reports whether the field carries a non-empty value.
func (n Number) Present() bool { return n.set }

// Int parses the value as a non-negative integer. Fractions are truncated;
// absent, unparsable and negative values are 0.
func (n Number) Int() int {
	if !n.set {
		return 0
	}
	if v, err := strconv.Atoi(n.raw); err == nil {
		return max(v, 0)
	}
	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// Item is one inventory entry owned by a user.
type Item struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	Quantity          Number `json:"quantity"`
	LowStockThreshold Number `json:"lowStockThreshold"`
}

// Threshold returns the item's own threshold when set, else global.
func (it Item) Threshold(global int) int {
	if it.LowStockThreshold.Present() {
		return it.LowStockThreshold.Int()
	}
	return global
}

// Classify resolves an item's stock status. Out-of-stock takes precedence
// over any threshold.
func Classify(it Item, global int) Status {
	q := it.Quantity.Int()
	if q == 0 {
		return Out
	}
	if q <= it.Threshold(global) {
		return Low
	}
	return OK
}
