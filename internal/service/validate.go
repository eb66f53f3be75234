package service

import (
	"errors"
	"fmt"
	"html"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cast"
)

var (
	inputValidator = newInputValidator()
	rolePolicy     = bluemonday.StrictPolicy()
)

func newInputValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput checks struct tags and reports violations as ErrInvalidInput.
func validateInput(s any) error {
	err := inputValidator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s %s", fe.Field(), fe.Tag()))
			}
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// sanitizeRole strips markup from a role name. The policy escapes text
// entities, so they are decoded again: "R&D" stays "R&D".
func sanitizeRole(role string) string {
	return strings.TrimSpace(html.UnescapeString(rolePolicy.Sanitize(role)))
}

// wholeInt coerces v to an int, rejecting fractional numbers that cast would truncate.
func wholeInt(v any) (int, error) {
	switch f := v.(type) {
	case float64:
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not a whole number", f)
		}
	case float32:
		if float64(f) != math.Trunc(float64(f)) {
			return 0, fmt.Errorf("%v is not a whole number", f)
		}
	}
	return cast.ToIntE(v)
}
