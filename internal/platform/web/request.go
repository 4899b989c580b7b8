package web

import (
	"encoding/json"
	"io"

	"github.com/coincart/settlement-engine/internal/platform/fault"

	validator "gopkg.in/go-playground/validator.v8"
)

var validate = validator.New(&validator.Config{TagName: "validate"})

// Unmarshal decodes the request body into the provided value and checks the
// "validate" field tags. Failures are validation faults, detected before any
// mutation.
func Unmarshal(r io.Reader, v interface{}) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fault.Validation("decode request : %s", err)
	}

	if err := validate.Struct(v); err != nil {
		return fault.Validation("invalid request : %s", err)
	}

	return nil
}
