package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every problem found while building a configuration
// so callers see all of them at once instead of fixing one per run.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	c.Errors = append(c.Errors, err)
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(c.Errors...))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (c *ValidationError) Unwrap() []error {
	return c.Errors
}
