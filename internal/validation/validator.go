// Package validation implements the field rules for trip drafts and sign-in
// credentials on top of go-playground/validator.
package validation

import (
	"errors"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/pkordes/trip-tracker/internal/domain"
)

// emailPattern accepts local@domain.tld: non-whitespace segments around a
// single @ and at least one dot in the domain part.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Messages shown next to each draft field.
const (
	MsgStart       = "Enter a start location"
	MsgDestination = "Enter a destination"
	MsgDate        = "Enter a trip date"
	MsgTransport   = "Choose a transport mode"
)

// Messages returned by Credentials.
const (
	MsgCredentialsMissing = "Fill in both e-mail and password."
	MsgEmailInvalid       = "Enter a valid e-mail address."
	MsgPasswordShort      = "Password must be at least 6 characters long."
)

var draftMessages = map[string]string{
	"start":       MsgStart,
	"destination": MsgDestination,
	"date":        MsgDate,
	"transport":   MsgTransport,
}

// draftRules is the validated shape of a draft. Values are normalized with
// domain.Draft.Normalized before validation; note has no rule and is not part of it.
type draftRules struct {
	Start       string `form:"start" validate:"required"`
	Destination string `form:"destination" validate:"required"`
	Date        string `form:"date" validate:"required"`
	Transport   string `form:"transport" validate:"required,oneof=car train plane"`
}

// Validator wraps go-playground/validator with the application's rules.
// It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the simpleemail tag registered and field names
// reported by their form tag.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("form"); name != "" {
			return name
		}
		return fld.Name
	})

	//nolint:errcheck // only fails for an empty tag or nil func
	_ = v.RegisterValidation("simpleemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})

	return &Validator{v: v}
}

var std = New()

// Draft validates a trip draft and returns field name -> message for every
// failing field. An empty map means the draft can be submitted.
func Draft(d domain.Draft) map[string]string {
	return std.Draft(d)
}

// Credentials validates sign-in input and returns the first failing message,
// or "" when the credentials may be sent to the auth service.
func Credentials(email, password string) string {
	return std.Credentials(email, password)
}

// IsValidEmail reports whether s looks like local@domain.tld.
func IsValidEmail(s string) bool {
	return std.v.Var(s, "simpleemail") == nil
}

// Draft validates a trip draft. See the package-level Draft.
func (v *Validator) Draft(d domain.Draft) map[string]string {
	errs := map[string]string{}

	// Validate exactly what NewTrip and PatchFromDraft will store.
	n := d.Normalized()
	rules := draftRules{
		Start:       n.Start,
		Destination: n.Destination,
		Date:        n.Date,
		Transport:   n.Transport,
	}
	err := v.v.Struct(rules)
	if err == nil {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// Only reachable for a non-struct argument, which draftRules never is.
		errs["submit"] = err.Error()
		return errs
	}
	for _, fe := range fieldErrs {
		errs[fe.Field()] = draftMessages[fe.Field()]
	}
	return errs
}

// Credentials validates sign-in input. See the package-level Credentials.
func (v *Validator) Credentials(email, password string) string {
	if email == "" || password == "" {
		return MsgCredentialsMissing
	}
	if v.v.Var(email, "simpleemail") != nil {
		return MsgEmailInvalid
	}
	if v.v.Var(password, "min=6") != nil {
		return MsgPasswordShort
	}
	return ""
}
