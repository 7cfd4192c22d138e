// Package validator wraps go-playground/validator so handler payload structs
// report failures under their json field names, matching what API clients
// actually sent.
package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, failure := range v {
		if failure.Param != "" {
			parts[i] = failure.Field + " failed on " + failure.Tag + "=" + failure.Param
		} else {
			parts[i] = failure.Field + " failed on " + failure.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct runs the struct's validate tags, converting any failures into
// ValidationErrors keyed by json field name.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// jsonFieldName resolves a struct field to the name clients see in payloads,
// falling back to the Go name for untagged or json:"-" fields.
func jsonFieldName(fld reflect.StructField) string {
	name := fld.Tag.Get("json")
	if name == "" {
		return fld.Name
	}

	if comma := strings.Index(name, ","); comma != -1 {
		name = name[:comma]
	}

	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
