package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// requestValidator plugs go-playground/validator into echo's c.Validate.
type requestValidator struct {
	v *validator.Validate
}

func NewValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("tracking_number", func(fl validator.FieldLevel) bool {
		return domain.IsTrackingNumber(fl.Field().String())
	})
	return &requestValidator{v: v}
}

// Validate joins every field failure into one message, in struct order.
func (rv *requestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, len(fields))
	for n, fe := range fields {
		msgs[n] = describe(fe)
	}
	return errors.New(strings.Join(msgs, "; "))
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// tagMessages render a failure given the field path and the tag parameter.
var tagMessages = map[string]func(field, param string) string{
	"required":         func(f, _ string) string { return f + " is required" },
	"required_without": func(f, p string) string { return fmt.Sprintf("%s is required when %s is absent", f, p) },
	"email":            func(f, _ string) string { return f + " must be a valid email" },
	"gt":               func(f, p string) string { return fmt.Sprintf("%s must be greater than %s", f, p) },
	"min":              func(f, p string) string { return fmt.Sprintf("%s must be at least %s", f, p) },
	"max":              func(f, p string) string { return fmt.Sprintf("%s must be at most %s", f, p) },
	"oneof":            func(f, p string) string { return fmt.Sprintf("%s must be one of: %s", f, p) },
	"latitude":         func(f, _ string) string { return f + " must be a valid latitude" },
	"longitude":        func(f, _ string) string { return f + " must be a valid longitude" },
	"tracking_number":  func(f, _ string) string { return f + " must look like ST-1234567" },
}

func describe(fe validator.FieldError) string {
	// Namespace is "<Struct>.<json path>"; drop the struct name.
	_, field, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		field = fe.Field()
	}
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg(field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
