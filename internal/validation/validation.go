package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"stockmaster/backend/internal/money"
)

// FieldError describes one failed rule.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// Errors is returned when a struct fails validation.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		if fe.Param != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field, fe.Tag, fe.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field, fe.Tag))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var validate = validator.New()

func init() {
	// Report JSON names where a field has one.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// dgte: the string field parses as a decimal no smaller than the param.
	validate.RegisterValidation("dgte", func(fl validator.FieldLevel) bool {
		floor, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		parsed := money.Parse(fl.Field().String())
		return parsed.Valid && parsed.Value.GreaterThanOrEqual(floor)
	})
}

// Struct validates data against its `validate` tags. Field names are
// prefixed with prefix when it is not empty.
func Struct(prefix string, data any) Errors {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errors{{Field: prefix, Tag: "invalid"}}
	}

	out := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if prefix != "" {
			name = prefix + "." + name
		}
		out = append(out, FieldError{Field: name, Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}
