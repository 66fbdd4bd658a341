package web

import (
	"net/url"
	"strconv"
	"strings"
)

// missingValue is rendered for absent country and date display fields
const missingValue = "—"

// QueryParams is the fixed set of fields a scanned code puts in the page
// URL. It is read once per page request into an immutable value; absent
// keys yield empty strings, never errors. The event, device, t, nonce and
// sig fields are opaque here and forwarded verbatim to the backend.
type QueryParams struct {
	Event       string
	Device      string
	Country     string
	Time        string
	T           string
	Nonce       string
	Sig         string
	CountryName string
	LocalDT     string
}

// ParamsFromValues reads the recognized keys out of a parsed query string
func ParamsFromValues(values url.Values) QueryParams {
	return QueryParams{
		Event:       values.Get("event"),
		Device:      values.Get("device"),
		Country:     values.Get("country"),
		Time:        values.Get("time"),
		T:           values.Get("t"),
		Nonce:       values.Get("nonce"),
		Sig:         values.Get("sig"),
		CountryName: values.Get("countryName"),
		LocalDT:     values.Get("localDT"),
	}
}

// TimeSeconds coerces the time field; missing or unparsable values are zero
func (p QueryParams) TimeSeconds() float64 {
	sec, err := strconv.ParseFloat(strings.TrimSpace(p.Time), 64)
	if err != nil {
		return 0
	}
	return sec
}

// TimeDisplay is the hero time line, e.g. "12.34 sec"
func (p QueryParams) TimeDisplay() string {
	return formatSeconds(p.TimeSeconds()) + " sec"
}

// CountryDisplay is the hero country line, "—" when absent
func (p QueryParams) CountryDisplay() string {
	if p.CountryName == "" {
		return missingValue
	}
	return p.CountryName
}

// DateDisplay is the hero date line, "—" when absent
func (p QueryParams) DateDisplay() string {
	if p.LocalDT == "" {
		return missingValue
	}
	return p.LocalDT
}
