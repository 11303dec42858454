package middleware

import (
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationConfig represents validation configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

var errorMessages = map[string]string{}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomValidators: map[string]validator.Func{
			"hhmm": validateHHMM,
			"date": validateDate,
		},
		CustomErrorMessages: map[string]string{
			"required": "Field is required",
			"gt":       "Value is too small",
			"lte":      "Value is too large",
			"max":      "Value is too long",
			"oneof":    "Value is not one of the allowed values",
			"hhmm":     "Time must be HH:MM",
			"date":     "Date must be YYYY-MM-DD",
		},
	}
}

// RegisterValidators installs the custom tags on gin's binding engine and
// reports fields by their json name.
func RegisterValidators(config ValidationConfig) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	for tag, fn := range config.CustomValidators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	errorMessages = config.CustomErrorMessages
	return nil
}

// BindError wraps a binding failure as a bad request and lists the
// offending fields when the validator produced them.
func BindError(err error) (*errors.AppError, []ValidationError) {
	appErr := errors.BadRequest("invalid request", err)

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return appErr, nil
	}
	details := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		msg := errorMessages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		details = append(details, ValidationError{Field: e.Field(), Message: msg})
	}
	return appErr, details
}

func validateHHMM(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 5 {
		return false
	}
	_, err := model.ParseTimeOfDay(s)
	return err == nil
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(model.DateLayout, fl.Field().String())
	return err == nil
}
