// Package validation turns declared struct constraints into a field → message
// map, keyed by the JSON name of each field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\d{2,3}-\d{3,4}-\d{4}$`)

// Errors is the ValidationFailure outcome: one message per offending field.
type Errors struct {
	Fields map[string]string
}

func (e *Errors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsErrors extracts *Errors from err.
func AsErrors(err error) (*Errors, bool) {
	var ve *Errors
	ok := errors.As(err, &ve)
	return ve, ok
}

// Validator checks structs tagged with `validate:"..."`. Safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the "phone" rule registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	if err := registerRules(v, customRules); err != nil {
		panic(err)
	}
	return &Validator{v: v}
}

// customRules are the tags this package adds on top of the built-in ones.
var customRules = map[string]validator.Func{
	"phone": func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	},
}

func registerRules(v *validator.Validate, rules map[string]validator.Func) error {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("validation: register %q: %w", tag, err)
		}
	}
	return nil
}

// Validate returns nil when s satisfies its constraints and *Errors otherwise.
// Any other error means s could not be validated at all (e.g. not a struct).
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation: %w", err)
	}
	out := &Errors{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		if _, seen := out.Fields[fe.Field()]; !seen {
			out.Fields[fe.Field()] = message(fe)
		}
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be blank"
	case "email":
		return "must be a well-formed email address"
	case "alphanum":
		return "must contain only letters and digits"
	case "min":
		return fmt.Sprintf("length must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("length must be at most %s", fe.Param())
	case "phone":
		return "must match 000-0000-0000"
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}
