package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/trip-tracker/internal/domain"
)

// Messages shown by the trip list.
const (
	MsgNoTrips       = "No trips available."
	MsgConfirmDelete = "Do you really want to delete this trip?"
)

// ErrNotConfirmed is returned by TripList.Delete when the user declines.
var ErrNotConfirmed = errors.New("deletion not confirmed")

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) bool

// Confirm calls f(prompt).
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// TripList renders trips and forwards row actions to the shell.
type TripList struct {
	OnEdit       func(trip domain.Trip)
	OnDelete     func(ctx context.Context, id string) error
	OnToggleDone func(ctx context.Context, id string, done bool) error
}

// Row is one rendered trip.
type Row struct {
	Trip           domain.Trip
	Summary        string
	TransportLabel string
}

// ListModel is the rendered list.
type ListModel struct {
	Empty       bool
	Placeholder string
	Rows        []Row
}

// SortTrips returns a copy of trips ordered by date, earliest first. Equal
// dates keep their relative order; dates that cannot be parsed go last.
func SortTrips(trips []domain.Trip) []domain.Trip {
	type keyed struct {
		trip domain.Trip
		at   time.Time
		ok   bool
	}
	ks := make([]keyed, len(trips))
	for i, t := range trips {
		at, err := time.Parse(openapi_types.DateFormat, domain.DateOnly(t.Date))
		ks[i] = keyed{trip: t, at: at, ok: err == nil}
	}

	slices.SortStableFunc(ks, func(a, b keyed) int {
		switch {
		case a.ok && b.ok:
			return a.at.Compare(b.at)
		case a.ok:
			return -1
		case b.ok:
			return 1
		default:
			return 0
		}
	})

	out := make([]domain.Trip, len(ks))
	for i, k := range ks {
		out[i] = k.trip
	}
	return out
}

// Summary is the one-line description of a trip.
func Summary(t domain.Trip) string {
	return fmt.Sprintf("%s: %s → %s (%s)", t.Date, t.Start, t.Destination, t.Transport.Label())
}

// Render builds the list model for trips.
func (l TripList) Render(trips []domain.Trip) ListModel {
	if len(trips) == 0 {
		return ListModel{Empty: true, Placeholder: MsgNoTrips}
	}
	sorted := SortTrips(trips)
	rows := make([]Row, len(sorted))
	for i, t := range sorted {
		rows[i] = Row{Trip: t, Summary: Summary(t), TransportLabel: t.Transport.Label()}
	}
	return ListModel{Rows: rows}
}

// Toggle flips the completion flag of trip.
func (l TripList) Toggle(ctx context.Context, trip domain.Trip) error {
	if l.OnToggleDone == nil {
		return nil
	}
	return l.OnToggleDone(ctx, trip.ID, !trip.Done)
}

// Delete asks c for confirmation and then deletes the trip.
func (l TripList) Delete(ctx context.Context, id string, c Confirmer) error {
	if c == nil || !c.Confirm(MsgConfirmDelete) {
		return ErrNotConfirmed
	}
	if l.OnDelete == nil {
		return nil
	}
	return l.OnDelete(ctx, id)
}

// Edit starts editing trip.
func (l TripList) Edit(trip domain.Trip) {
	if l.OnEdit != nil {
		l.OnEdit(trip)
	}
}
