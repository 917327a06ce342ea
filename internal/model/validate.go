package model

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MsgRequiredFields is returned to clients when a required field is blank.
const MsgRequiredFields = "full_name, email, and message are required"

// ValidationError is a client-caused rejection. Message is safe to return
// verbatim in the response body.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks required fields and length limits. Fields are expected to
// be trimmed already (NewSubmission does that).
func (s *Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	for _, fe := range ve {
		if fe.Tag() == "required" {
			return &ValidationError{Field: fe.Field(), Message: MsgRequiredFields}
		}
	}
	fe := ve[0]
	return &ValidationError{Field: fe.Field(), Message: fe.Field() + " is too long"}
}
