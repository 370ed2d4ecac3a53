package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NumericValue extracts a decimal from a field response payload. Payloads store
// the number under "value" (or "answer" for legacy clients) as a JSON number or
// a string with either decimal separator.
func NumericValue(payload map[string]interface{}) (decimal.Decimal, bool) {
	if payload == nil {
		return decimal.Zero, false
	}
	for _, key := range []string{"value", "answer"} {
		if raw, ok := payload[key]; ok {
			if d, ok := DecimalFrom(raw); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

// DecimalFrom converts a raw JSON value (number or string, either decimal
// separator) to a decimal.
func DecimalFrom(raw interface{}) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// AnswerString extracts the textual answer from a payload, preferring the
// nested "answer" key over the flat "value".
func AnswerString(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload["answer"].(string); ok {
		return s
	}
	if s, ok := payload["value"].(string); ok {
		return s
	}
	if raw, ok := payload["value"]; ok && raw != nil {
		return Stringify(raw)
	}
	return ""
}

// SelectedOptions extracts the selected option set from a dropdown or
// checkbox payload ("selected" array, else a single "value").
func SelectedOptions(payload map[string]interface{}) []string {
	if payload == nil {
		return nil
	}
	if raw, ok := payload["selected"].([]interface{}); ok {
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	if s, ok := payload["value"].(string); ok && s != "" {
		return []string{s}
	}
	return nil
}

// Stringify renders an offending response value for storage on an action plan
func Stringify(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// DocumentDigits strips everything but digits from a document number
func DocumentDigits(docNumber string) string {
	var b strings.Builder
	for _, r := range docNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NumericPrefix returns the first n digits of the document number's digit
// sequence, or "" when fewer than n digits exist.
func NumericPrefix(docNumber string, n int) string {
	digits := DocumentDigits(docNumber)
	if len(digits) < n {
		return ""
	}
	return digits[:n]
}
