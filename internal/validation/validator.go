// Package validation checks API request bodies and converts failures into
// coded domain errors the response layer maps to 400s.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

// Validator validates annotation and progress request DTOs.
type Validator struct {
	v *validator.Validate
}

// New builds a validator carrying the custom checks the book endpoints
// rely on.
func New() *Validator {
	v := validator.New()

	// Error messages name the JSON field, not the Go field.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Locators are opaque reader positions (EPUB CFIs or viewer-native
	// strings). The server never interprets them, but values that are
	// blank once trimmed or that carry control characters round-trip
	// badly through the search index, so those are rejected here.
	mustRegister(v, "locator", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.TrimSpace(s) == "" {
			return false
		}
		return !strings.ContainsFunc(s, unicode.IsControl)
	})

	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// Validate checks a request struct. On failure it returns a validation
// domain error carrying one message per offending field.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

// message translates the tags the request DTOs actually use. Anything
// else falls through to a generic message rather than leaking tag names.
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "locator":
		return "must be a non-empty reader position"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
