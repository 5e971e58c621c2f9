package validator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var global *validator.Validate

// ErrValidation is wrapped by every error Validate returns.
var ErrValidation = errors.New("validation failed")

const (
	ErrInvalidFormat      = "Invalid format"
	ErrInvalidEmail       = "Invalid email address"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("eventdate", validateDate)
	_ = v.RegisterValidation("clock", validateClock)
	_ = v.RegisterValidation("singleline", validateSingleLine)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

// jsonName reports fields by their JSON name so messages match the request body.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// validateDate accepts YYYY-MM-DD.
func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

// validateClock accepts HH:MM or an empty string.
func validateClock(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// validateSingleLine rejects carriage returns and line feeds.
func validateSingleLine(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), "\r\n")
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return errors.Join(ErrValidation, err)
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "eventdate":
		msg = "Date must be YYYY-MM-DD"
	case "clock":
		msg = "Time must be HH:MM"
	case "singleline":
		msg = "Field must be a single line"
	case "email":
		msg = ErrInvalidEmail
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "oneof":
		msg = ErrInvalidFormat
	default:
		msg = ErrUnknownValidation
	}
	return &Error{Field: ve.Field(), Message: msg}
}

// Error describes the first failing field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message + ": " + e.Field
}

func (e *Error) Unwrap() error {
	return ErrValidation
}
