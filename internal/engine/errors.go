package engine

import (
	"errors"
	"fmt"
)

// Engine error kinds. Both are fatal and raised before the loop starts;
// nothing inside the loop raises them.
var (
	// ErrConfiguration marks a malformed or inconsistent SimulationConfig.
	ErrConfiguration = errors.New("configuration error")

	// ErrData marks an unusable bar series or signal set.
	ErrData = errors.New("data error")

	// ErrNumericDegeneracy is returned only under FailFast; otherwise
	// degenerate bars are skipped and recorded as diagnostics.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

func configErrorf(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, fmt.Sprintf(format, args...))
}

func dataErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}
