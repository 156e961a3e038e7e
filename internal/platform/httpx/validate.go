package httpx

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator builds a validator that reports fields by their json tag so
// validation errors line up with the request payload.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// TranslateValidationErrors converts validator errors into the
// field -> [messages] mapping used by 422 responses.
func TranslateValidationErrors(err error) map[string][]string {
	fieldErrors := make(map[string][]string)
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		fieldErrors["general"] = []string{err.Error()}
		return fieldErrors
	}
	for _, fe := range validationErrs {
		field := fe.Field()
		fieldErrors[field] = append(fieldErrors[field], validationMessage(field, fe))
	}
	return fieldErrors
}

func validationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field may not be greater than %s characters.", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s field confirmation does not match.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
