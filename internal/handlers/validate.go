// internal/handlers/validate.go
package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so messages match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) requestValidator() *validator.Validate {
	s.validateOnce.Do(func() {
		if s.Validate == nil {
			s.Validate = newValidator()
		}
	})
	return s.Validate
}

// validateRequest checks req against its validate tags and returns a message
// suitable for a 400 response, or "" when req is valid.
func (s *Server) validateRequest(req interface{}) string {
	err := s.requestValidator().Struct(req)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request payload"
	}
	return validationMessage(verrs[0])
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "contains":
		return "a valid " + field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return field + " must be positive"
	}
	return field + " is invalid"
}
