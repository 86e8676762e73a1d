package matching

import "fmt"

// ConfigurationError reports invalid resolution options. It is raised before
// any provider is contacted.
type ConfigurationError struct {
	Field   string
	Message string
	Value   any
}

func (e *ConfigurationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("configuration error: %s %s (got %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Message)
}
