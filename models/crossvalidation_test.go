package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestComputeDifferenceAndTolerance(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		secondary string
		wantDiff  string
		wantOK    bool
	}{
		{"exact", "100.00", "100.00", "0", true},
		{"one cent under", "100.00", "99.99", "0.01", true},
		{"one cent over", "100.00", "100.01", "0.01", true},
		{"just beyond", "100.00", "100.011", "0.011", false},
		{"large gap", "250.00", "100.00", "150", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := CrossValidation{}
			cv.FillLeg(RolePrimary, uuid.New(), decimal.RequireFromString(tt.primary))
			cv.FillLeg(RoleSecondary, uuid.New(), decimal.RequireFromString(tt.secondary))

			diff := cv.ComputeDifference()
			if !diff.Equal(decimal.RequireFromString(tt.wantDiff)) {
				t.Errorf("difference = %s, want %s", diff, tt.wantDiff)
			}
			if cv.WithinTolerance() != tt.wantOK {
				t.Errorf("WithinTolerance() = %v, want %v", cv.WithinTolerance(), tt.wantOK)
			}
		})
	}
}

func TestComputeDifferenceMissingLegIsZero(t *testing.T) {
	cv := CrossValidation{}
	cv.FillLeg(RolePrimary, uuid.New(), decimal.RequireFromString("75.50"))

	if diff := cv.ComputeDifference(); !diff.Equal(decimal.RequireFromString("75.50")) {
		t.Errorf("difference = %s, want 75.50", diff)
	}
}

func TestSeverityEscalate(t *testing.T) {
	tests := []struct {
		from Severity
		want Severity
	}{
		{SeverityBaixa, SeverityMedia},
		{SeverityMedia, SeverityAlta},
		{SeverityAlta, SeverityCritica},
		{SeverityCritica, SeverityCritica},
		{Severity("unknown"), Severity("unknown")},
	}

	for _, tt := range tests {
		if got := tt.from.Escalate(); got != tt.want {
			t.Errorf("Escalate(%s) = %s, want %s", tt.from, got, tt.want)
		}
	}
}
