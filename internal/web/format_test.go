package web

import (
	"testing"
	"time"

	"github.com/sprintboard/internal/domain"
)

func TestOrdinal(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "1st"},
		{2, "2nd"},
		{3, "3rd"},
		{4, "4th"},
		{10, "10th"},
		{11, "11th"},
		{12, "12th"},
		{13, "13th"},
		{14, "14th"},
		{21, "21st"},
		{22, "22nd"},
		{23, "23rd"},
		{100, "100th"},
		{101, "101st"},
		{102, "102nd"},
		{103, "103rd"},
		{111, "111th"},
		{112, "112th"},
		{113, "113th"},
		{121, "121st"},
		{1013, "1013th"},
	}

	for _, tt := range tests {
		if got := ordinal(tt.n); got != tt.want {
			t.Errorf("ordinal(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{12.34, "12.34"},
		{9.8, "9.8"},
		{0, "0"},
		{10, "10"},
	}

	for _, tt := range tests {
		if got := formatSeconds(tt.sec); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestRowDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	created := time.Date(2025, 5, 30, 18, 45, 0, 0, time.UTC)
	qr := time.Date(2025, 5, 30, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		row  domain.Row
		want string
	}{
		{"created_at wins", domain.Row{CreatedAt: &created, TQR: &qr}, "2025-05-30 18:45"},
		{"t_qr fallback", domain.Row{TQR: &qr}, "2025-05-30 18:30"},
		{"now fallback", domain.Row{}, "2025-06-01 10:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rowDate(tt.row, now); got != tt.want {
				t.Errorf("rowDate() = %q, want %q", got, tt.want)
			}
		})
	}
}
