package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/worktype-resolver/internal/matching"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the addressed resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnavailable indicates a backend the endpoint needs is not configured
type ErrUnavailable struct {
	Component string
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("%s is not configured", e.Component)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		configErr     *matching.ConfigurationError
		notFoundErr   *ErrNotFound
		unavailErr    *ErrUnavailable
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &unavailErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
