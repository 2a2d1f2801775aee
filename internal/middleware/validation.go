package middleware

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "labflat/internal/errors"
)

// Validator checks request structs against their validate tags and reports
// failures as API validation errors.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that names fields after their form or
// json tag and knows the archive_name rule.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("archive_name", isArchiveName); err != nil {
		panic(fmt.Sprintf("register archive_name validation: %v", err))
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &Validator{validate: v}
}

// ValidateStruct returns nil or an *apierrors.APIError listing every
// rejected field.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	validationErrors := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(validationErrors)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "archive_name":
		return fmt.Sprintf("%s must be a plain file name", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isArchiveName accepts a plain client-side file name: no directories and
// no traversal.
func isArchiveName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > 255 {
		return false
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return false
	}
	return path.Base(name) == name
}
