package web

import (
	"strconv"
	"time"

	"github.com/sprintboard/internal/domain"
)

// ordinal formats a 1-based rank as "1st", "2nd", "3rd", "11th", "21st"...
func ordinal(n int64) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
		// teens always take "th"
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.FormatInt(n, 10) + suffix
}

// formatSeconds renders a sprint time without trailing zeros
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', -1, 64)
}

// rowDate picks the display date for a board row: the backend creation
// time if present, else the QR timestamp, else the current moment.
func rowDate(row domain.Row, now time.Time) string {
	ts := now
	switch {
	case row.CreatedAt != nil:
		ts = *row.CreatedAt
	case row.TQR != nil:
		ts = *row.TQR
	}
	return ts.Format("2006-01-02 15:04")
}
