package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseRate reads a rate given either as a JSON number or as a string that may use a decimal comma.
// Only strictly positive rates are accepted.
func ParseRate(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, fmt.Errorf("rate is missing")
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, fmt.Errorf("rate is not a string: %w", err)
		}
		normalized, err := decimalComma(strings.TrimSpace(s))
		if err != nil {
			return decimal.Decimal{}, err
		}
		text = normalized
	}

	rate, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rate %q is not numeric", text)
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("rate %s is not positive", rate)
	}
	return rate, nil
}

// decimalComma rewrites a single decimal comma as a point. Mixed or repeated separators,
// and a comma followed by exactly three digits, could be grouping and are rejected.
func decimalComma(s string) (string, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return s, nil
	}
	if strings.Count(s, ",") > 1 || strings.Contains(s, ".") || len(s)-comma-1 == 3 {
		return "", fmt.Errorf("rate %q has ambiguous separators", s)
	}
	return s[:comma] + "." + s[comma+1:], nil
}

// ParseTimestamp reads an upstream observation time. An empty value means the upstream gave none and now is used.
func ParseTimestamp(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now.UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
