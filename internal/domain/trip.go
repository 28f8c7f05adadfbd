// Package domain contains the core data types for the trip tracker.
// This package has zero external dependencies and is imported by every other
// internal package (validation, backend, view, shell, handler).
package domain

import "strings"

// Transport is the way a trip is travelled.
type Transport string

// Supported transport modes, in display order.
const (
	TransportCar   Transport = "car"
	TransportTrain Transport = "train"
	TransportPlane Transport = "plane"
)

// Transports returns every supported transport mode in display order.
func Transports() []Transport {
	return []Transport{TransportCar, TransportTrain, TransportPlane}
}

// ParseTransport returns the Transport named by s and whether it is known.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseTransport(s string) (Transport, bool) {
	t := Transport(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Transports() {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Label returns the human-readable name shown in the UI.
func (t Transport) Label() string {
	switch t {
	case TransportCar:
		return "Car"
	case TransportTrain:
		return "Train"
	case TransportPlane:
		return "Plane"
	default:
		return string(t)
	}
}

// Trip is one planned journey owned by a single user.
// ID and UserID are assigned once and never change afterwards.
//
// Date is kept exactly as the backend delivered it. Hosted backends may
// return a timestamp ("2024-05-01T00:00:00Z") for a date column; use
// DateOnly when a calendar date is needed.
type Trip struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Start       string    `json:"start"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	Note        string    `json:"note,omitempty"`
	Transport   Transport `json:"transport"`
	Done        bool      `json:"done"`
}

// Draft holds the editable fields of a trip while it is being created or edited.
// Field values are raw form input; Transport may be empty when nothing was selected.
type Draft struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Note        string `json:"note"`
	Transport   string `json:"transport"`
}

// DraftFromTrip pre-populates a draft from an existing record.
// The date is truncated to its date-only portion.
func DraftFromTrip(t Trip) Draft {
	return Draft{
		Start:       t.Start,
		Destination: t.Destination,
		Date:        DateOnly(t.Date),
		Note:        t.Note,
		Transport:   string(t.Transport),
	}
}

// DateOnly strips any time or zone suffix from an ISO-8601 date string.
// "2024-05-01T00:00:00Z" becomes "2024-05-01"; "2024-05-01" is returned unchanged.
func DateOnly(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// TripPatch is a partial update of a trip. Nil fields are left untouched.
type TripPatch struct {
	Start       *string    `json:"start,omitempty"`
	Destination *string    `json:"destination,omitempty"`
	Date        *string    `json:"date,omitempty"`
	Note        *string    `json:"note,omitempty"`
	Transport   *Transport `json:"transport,omitempty"`
	Done        *bool      `json:"done,omitempty"`
}

// Normalized returns the draft as it is stored: start, destination and date
// trimmed, transport in its canonical form. Unknown transports are only
// trimmed. The note is kept verbatim.
func (d Draft) Normalized() Draft {
	d.Start = strings.TrimSpace(d.Start)
	d.Destination = strings.TrimSpace(d.Destination)
	d.Date = strings.TrimSpace(d.Date)
	if t, ok := ParseTransport(d.Transport); ok {
		d.Transport = string(t)
	} else {
		d.Transport = strings.TrimSpace(d.Transport)
	}
	return d
}

// PatchFromDraft builds a full-field update from a submitted draft.
// The completion flag is not part of the draft and stays untouched.
func PatchFromDraft(d Draft) TripPatch {
	d = d.Normalized()
	start, dest, date, note := d.Start, d.Destination, d.Date, d.Note
	transport := Transport(d.Transport)
	return TripPatch{
		Start:       &start,
		Destination: &dest,
		Date:        &date,
		Note:        &note,
		Transport:   &transport,
	}
}

// DonePatch builds a completion-flag-only update.
func DonePatch(done bool) TripPatch {
	return TripPatch{Done: &done}
}

// NewTrip builds the record inserted for a draft submitted by userID.
// The completion flag always starts out false.
func NewTrip(userID string, d Draft) Trip {
	d = d.Normalized()
	return Trip{
		UserID:      userID,
		Start:       d.Start,
		Destination: d.Destination,
		Date:        d.Date,
		Note:        d.Note,
		Transport:   Transport(d.Transport),
		Done:        false,
	}
}
