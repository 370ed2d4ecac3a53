package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNumericValue(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
		ok      bool
	}{
		{"json number", map[string]interface{}{"value": 150.75}, "150.75", true},
		{"dot string", map[string]interface{}{"value": "150.75"}, "150.75", true},
		{"comma string", map[string]interface{}{"value": "1350,50"}, "1350.5", true},
		{"legacy answer key", map[string]interface{}{"answer": "42"}, "42", true},
		{"value wins over answer", map[string]interface{}{"value": 1.0, "answer": "2"}, "1", true},
		{"empty string", map[string]interface{}{"value": ""}, "", false},
		{"garbage string", map[string]interface{}{"value": "abc"}, "", false},
		{"missing key", map[string]interface{}{"other": 1.0}, "", false},
		{"nil payload", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NumericValue(tt.payload)
			if ok != tt.ok {
				t.Fatalf("NumericValue(%v) ok = %v, want %v", tt.payload, ok, tt.ok)
			}
			if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("NumericValue(%v) = %s, want %s", tt.payload, got, tt.want)
			}
		})
	}
}

func TestAnswerString(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{"answer preferred", map[string]interface{}{"answer": "sim", "value": "nao"}, "sim"},
		{"value fallback", map[string]interface{}{"value": "nao"}, "nao"},
		{"numeric value stringified", map[string]interface{}{"value": 12345.0}, "12345"},
		{"nil payload", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnswerString(tt.payload); got != tt.want {
				t.Errorf("AnswerString(%v) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestSelectedOptions(t *testing.T) {
	got := SelectedOptions(map[string]interface{}{"selected": []interface{}{"Luvas", "Touca"}})
	if len(got) != 2 || got[0] != "Luvas" || got[1] != "Touca" {
		t.Errorf("SelectedOptions = %v, want [Luvas Touca]", got)
	}

	got = SelectedOptions(map[string]interface{}{"value": "Avariado"})
	if len(got) != 1 || got[0] != "Avariado" {
		t.Errorf("SelectedOptions = %v, want [Avariado]", got)
	}

	if got := SelectedOptions(nil); got != nil {
		t.Errorf("SelectedOptions(nil) = %v, want nil", got)
	}
}

func TestNumericPrefix(t *testing.T) {
	tests := []struct {
		doc  string
		n    int
		want string
	}{
		{"123456", 3, "123"},
		{"NF-123.456", 3, "123"},
		{"12", 3, ""},
		{"ABC", 3, ""},
		{"", 3, ""},
	}

	for _, tt := range tests {
		if got := NumericPrefix(tt.doc, tt.n); got != tt.want {
			t.Errorf("NumericPrefix(%q, %d) = %q, want %q", tt.doc, tt.n, got, tt.want)
		}
	}
}

func TestDocumentDigits(t *testing.T) {
	if got := DocumentDigits("NF-123.456/78"); got != "12345678" {
		t.Errorf("DocumentDigits = %q, want 12345678", got)
	}
}
