// Package validation wraps go-playground/validator and converts its errors
// into domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/coversync/coversync-server/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that names fields by their env tag, falling back to
// the json tag and then the Go field name.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		name := fld.Tag.Get("json")
		if name == "" || name == "-" {
			return fld.Name
		}
		if i := strings.IndexByte(name, ','); i >= 0 {
			return name[:i]
		}
		return name
	})

	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})

	return &Validator{v: v}
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

// Struct validates s with a shared validator.
func Struct(s any) error {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV.Validate(s)
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails(summarize(fieldErrors), fieldErrors)
}

func summarize(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for k, msg := range fields {
		parts = append(parts, k+" "+msg)
	}
	if len(parts) == 1 {
		return "validation failed: " + parts[0]
	}
	return fmt.Sprintf("validation failed: %d fields invalid", len(parts))
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "min":
		return "must have at least " + e.Param() + " items"
	case "hhmm":
		return "must be a time of day in HH:MM form"
	default:
		return "is invalid"
	}
}
