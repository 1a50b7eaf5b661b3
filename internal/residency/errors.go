package residency

import (
	"errors"
	"fmt"
)

// ErrUnknownClass is returned for a class outside the closed set. It is a
// programming error and the only hard failure of the manager.
var ErrUnknownClass = errors.New("unknown model class")

// ModelLoadError reports that a class-specific loader failed.
type ModelLoadError struct {
	Class   Class
	ModelID string
	Err     error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load %s model %q: %v", e.Class, e.ModelID, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// IsModelLoad reports whether err is a ModelLoadError.
func IsModelLoad(err error) bool {
	var e *ModelLoadError
	return errors.As(err, &e)
}
