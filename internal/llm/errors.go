package llm

import "fmt"

// APICallError represents an error returned by a provider API
type APICallError struct {
	Message string
	Cause   error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("API call failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("API call failed: %s", e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// DimensionError reports an embedding whose length differs from the configured dimension
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, expected %d", e.Actual, e.Expected)
}
