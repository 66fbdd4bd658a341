package domain

import (
	"strconv"
	"strings"
	"time"
)

// Row represents a single leaderboard entry as rendered to participants.
// Rows are produced by the ranking backend and treated as read-only
// display data everywhere else.
type Row struct {
	ID          *int64     `json:"id,omitempty"`
	Name        string     `json:"name"`
	Age         *int       `json:"age,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	Country     string     `json:"country"`
	TimeSeconds float64    `json:"time_seconds"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	TQR         *time.Time `json:"t_qr,omitempty"`
}

// MeRow is the submitting participant's own row, extended with the
// ranks computed at registration time.
type MeRow struct {
	Row
	RankCountry *int64 `json:"rank_country,omitempty"`
	RankGlobal  *int64 `json:"rank_global,omitempty"`
}

// Matches reports whether row is the participant's own entry. Identity is
// by value equality of name, time and country; two legitimately distinct
// rows with identical values both match. Accepted approximation.
func (m *MeRow) Matches(row Row) bool {
	return row.Name == m.Name &&
		row.TimeSeconds == m.TimeSeconds &&
		row.Country == m.Country
}

// Registration is the payload posted by the capture page: the QR fields
// forwarded verbatim plus the participant-entered fields.
type Registration struct {
	Event   string  `json:"event"`
	Device  string  `json:"device"`
	Country string  `json:"country"`
	Time    string  `json:"time"`
	T       string  `json:"t"`
	Nonce   string  `json:"nonce"`
	Sig     string  `json:"sig"`
	Name    string  `json:"name"`
	Age     *int    `json:"age"`
	Gender  *string `json:"gender"`
}

// TimeSeconds parses the QR time field. Missing or unparsable values
// coerce to zero, mirroring the capture page.
func (r *Registration) TimeSeconds() float64 {
	sec, err := strconv.ParseFloat(strings.TrimSpace(r.Time), 64)
	if err != nil {
		return 0
	}
	return sec
}

// QRTimestamp parses the QR t field (unix seconds) if present.
func (r *Registration) QRTimestamp() *time.Time {
	unix, err := strconv.ParseInt(strings.TrimSpace(r.T), 10, 64)
	if err != nil {
		return nil
	}
	ts := time.Unix(unix, 0).UTC()
	return &ts
}

// Validate checks the fields the backend refuses to accept without.
// The signature itself is opaque at this layer.
func (r *Registration) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidRegistration
	}
	if r.Country == "" || r.Nonce == "" {
		return ErrInvalidRegistration
	}
	if r.TimeSeconds() <= 0 {
		return ErrInvalidRegistration
	}
	return nil
}

// RegistrationResult is the successful response to a registration:
// the participant's own ranked row plus the refreshed board slices.
// Absent slices are treated as empty by consumers.
type RegistrationResult struct {
	Me           MeRow `json:"me"`
	BoardCountry []Row `json:"leaderboard_country,omitempty"`
	BoardGlobal  []Row `json:"leaderboard_global,omitempty"`
}

// RankPreview is the best-effort rank estimate shown before submission.
type RankPreview struct {
	Rank *int64 `json:"rank,omitempty"`
}
