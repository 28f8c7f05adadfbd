package domain

import "errors"

// ErrNotFound is returned by backends when the requested trip does not exist
// or does not belong to the signed-in user.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails a field rule (e.g. a blank
// destination). Nothing is sent to the backend when this is returned.
var ErrValidation = errors.New("validation error")

// ErrUnauthenticated is returned by data operations attempted without a session.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrConflict is returned when a unique value (such as an e-mail address) is
// already taken.
var ErrConflict = errors.New("conflict")

// ErrSubmitInProgress is returned when a form is submitted while a previous
// submission of the same form has not finished yet.
var ErrSubmitInProgress = errors.New("submission already in progress")
