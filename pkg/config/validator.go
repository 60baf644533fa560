package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate = validator.New()

// formatValidationError turns the first tag failure into a readable error.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	e := validationErrs[0]
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "min":
		return fmt.Errorf("%s: must be at least %s", field, e.Param())
	case "max":
		return fmt.Errorf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %v", field, e.Param(), e.Value())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}

// checker collects cross-field failures rather than stopping at the first.
type checker struct {
	errors []error
}

// check records err, prefixed with field, when it is not nil.
func (c *checker) check(field string, err error) *checker {
	if err != nil {
		c.errors = append(c.errors, fmt.Errorf("%s: %w", field, err))
	}
	return c
}

// when applies checks only if cond holds.
func (c *checker) when(cond bool, checks func(*checker)) *checker {
	if cond {
		checks(c)
	}
	return c
}

func (c *checker) err() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	}
	return fmt.Errorf("config validation failed with %d errors: %w", len(c.errors), errors.Join(c.errors...))
}
