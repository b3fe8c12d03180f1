package utils

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
)

const BodyTarget = "request body"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSONBody decodes the request body into dst and validates its
// `validate` tags. Failures are VALIDATION_FAILED errors naming the first bad field.
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return idmerrors.ValidationError("valid JSON", BodyTarget)
	}
	return ValidateStruct(dst)
}

func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return idmerrors.ValidationError(first.Field(), BodyTarget).WithDetail("rule", first.Tag())
	}
	return idmerrors.InternalWrap(err, "failed to validate request")
}
