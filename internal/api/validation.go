package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"vidtube/internal/apperr"
)

var requestValidator = newRequestValidator()

var errBodyTooLarge = errors.New("request body too large")

// newRequestValidator reports fields by their JSON names.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads exactly one JSON object from body into dst and
// runs its validate tags. Failures come back as validation errors, except
// an oversized body which is errBodyTooLarge.
func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return apperr.Validation("Invalid JSON body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid JSON body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return apperr.Validation(validationMessage(validationErrors[0]))
		}
		return apperr.Validation("Invalid request payload")
	}

	return nil
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_without", "required_without_all":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email format"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("Invalid %s", field)
	}
}

// decodeJSON writes the error response itself and reports whether the
// handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeAndValidate(r.Body, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, errBodyTooLarge) {
		payloadTooLarge(w)
		return false
	}
	writeAppError(w, r, err)
	return false
}
