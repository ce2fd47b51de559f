package hierarchical

import (
	"errors"
	"fmt"
	"slices"
)

// SupportedModelTypes lists the base encoder families the hierarchical
// encoder accepts.
var SupportedModelTypes = []string{"bert", "camembert", "xlm-roberta", "roberta"}

var (
	// ErrUnsupportedModel is wrapped by ConfigError when the base encoder
	// declares a model type outside SupportedModelTypes.
	ErrUnsupportedModel = errors.New("unsupported base encoder model type")

	// ErrInvalidOption is wrapped by ConfigError for out-of-range options.
	ErrInvalidOption = errors.New("invalid option")
)

// ConfigError is returned by New when the encoder cannot be built.
type ConfigError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("hierarchical: %s=%v: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsSupportedModelType reports whether modelType is an accepted base encoder family.
func IsSupportedModelType(modelType string) bool {
	return slices.Contains(SupportedModelTypes, modelType)
}
