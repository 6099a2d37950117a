package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

var validate = validatorv10.New(validatorv10.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldError describes a single payload field that failed validation.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// DecodeJSON reads the request body into dst and validates it against its struct tags.
// Failures are returned as 400 INVALID_INPUT AppErrors.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return InvalidInput("request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return NewAppError(CodePayloadTooLarge, "request entity too large", http.StatusRequestEntityTooLarge, err)
		}
		if errors.Is(err, io.EOF) {
			return InvalidInput("request body is required", err)
		}
		return InvalidInput("invalid JSON payload", err)
	}
	return Validate(dst)
}

// Validate runs struct tag validation on v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validatorv10.ValidationErrors
	if !errors.As(err, &verrs) {
		return InvalidInput("invalid payload", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe), Rule: fe.Tag(), Param: fe.Param()})
	}
	return InvalidInput(fmt.Sprintf("%d field(s) failed validation", len(fields)), err).
		WithDetails(map[string]any{"fields": fields})
}

// fieldPath drops the root struct name from the namespace reported by the validator.
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
