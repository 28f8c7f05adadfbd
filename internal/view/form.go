// Package view holds the per-browser UI components of the trip tracker: the
// trip form, the trip list and the auth view. Components own only their local
// input state and reach the backend exclusively through injected callbacks.
package view

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/pkordes/trip-tracker/internal/domain"
	"github.com/pkordes/trip-tracker/internal/validation"
)

// Form field names. They double as the keys of the error map.
const (
	FieldStart       = "start"
	FieldDestination = "destination"
	FieldDate        = "date"
	FieldNote        = "note"
	FieldTransport   = "transport"

	// FieldSubmit holds the error recorded when persisting fails.
	FieldSubmit = "submit"
)

// MsgSubmitFailed is shown when the persistence callback fails.
const MsgSubmitFailed = "Could not save the trip"

// TripForm is the create/edit form for a single trip.
type TripForm struct {
	mu         sync.Mutex
	draft      domain.Draft
	errors     map[string]string
	submitting bool
	editing    bool
	seq        uint64
	owner      string
}

// TripFormState is a read-only snapshot of a TripForm for rendering.
type TripFormState struct {
	Draft       domain.Draft
	Errors      map[string]string
	Submitting  bool
	Editing     bool
	Title       string
	ButtonLabel string
}

// NewTripForm returns an empty form.
func NewTripForm() *TripForm {
	return &TripForm{errors: map[string]string{}}
}

// Sync tells the form which record the shell is editing. seq identifies the
// shell's editing reference; the draft is only re-populated when seq changes
// to a new non-nil record, so user input survives repeated renders.
func (f *TripForm) Sync(editing *domain.Trip, seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.editing = editing != nil
	if seq == f.seq {
		return
	}
	f.seq = seq
	if editing != nil {
		f.draft = domain.DraftFromTrip(*editing)
		f.errors = map[string]string{}
	}
}

// Claim binds the form to the signed-in user. When the user differs from the
// previous one the draft and errors are dropped, so nothing typed by one
// account is shown to the next.
func (f *TripForm) Claim(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == f.owner {
		return
	}
	f.owner = userID
	f.draft = domain.Draft{}
	f.errors = map[string]string{}
	f.editing = false
}

// Change sets one field and clears its error. Unknown fields are ignored and
// reported as false.
func (f *TripForm) Change(field, value string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.change(field, value)
}

func (f *TripForm) change(field, value string) bool {
	switch field {
	case FieldStart:
		f.draft.Start = value
	case FieldDestination:
		f.draft.Destination = value
	case FieldDate:
		f.draft.Date = value
	case FieldNote:
		f.draft.Note = value
	case FieldTransport:
		f.draft.Transport = value
	default:
		return false
	}
	delete(f.errors, field)
	return true
}

// Fill applies every field of a posted form.
func (f *TripForm) Fill(d domain.Draft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.change(FieldStart, d.Start)
	f.change(FieldDestination, d.Destination)
	f.change(FieldDate, d.Date)
	f.change(FieldNote, d.Note)
	f.change(FieldTransport, d.Transport)
}

// Submit validates the draft and hands it to persist.
//
// Validation failures are stored and reported as domain.ErrValidation without
// calling persist. A submit while another is running returns
// domain.ErrSubmitInProgress. On success the draft is reset; on failure the
// draft is kept and a submit error recorded. The lock is not held while
// persist runs.
func (f *TripForm) Submit(ctx context.Context, persist func(context.Context, domain.Draft) error) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return domain.ErrSubmitInProgress
	}
	if errs := validation.Draft(f.draft); len(errs) > 0 {
		f.errors = errs
		f.mu.Unlock()
		return fmt.Errorf("view.TripForm.Submit: %w", domain.ErrValidation)
	}
	f.submitting = true
	draft := f.draft
	f.mu.Unlock()

	err := persist(ctx, draft)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		f.errors = map[string]string{FieldSubmit: MsgSubmitFailed}
		return fmt.Errorf("view.TripForm.Submit: %w", err)
	}
	f.draft = domain.Draft{}
	f.errors = map[string]string{}
	return nil
}

// Snapshot returns the current state for rendering.
func (f *TripForm) Snapshot() TripFormState {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := TripFormState{
		Draft:      f.draft,
		Errors:     maps.Clone(f.errors),
		Submitting: f.submitting,
		Editing:    f.editing,
	}
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}

	s.Title = "Add a new trip"
	if f.editing {
		s.Title = "Edit trip"
	}
	switch {
	case f.submitting:
		s.ButtonLabel = "Saving..."
	case f.editing:
		s.ButtonLabel = "Save changes"
	default:
		s.ButtonLabel = "Add trip"
	}
	return s
}
