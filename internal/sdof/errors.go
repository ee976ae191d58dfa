package sdof

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every analysis package. Callers match them with errors.Is.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrTooFewSamples     = errors.New("ground motion needs at least two samples")
	ErrNonMonotonicTime  = errors.New("time samples must be strictly increasing")
	ErrLengthMismatch    = errors.New("time and acceleration lengths differ")
	ErrDomain            = errors.New("parameter outside the method's domain")
	ErrUnstable          = errors.New("time step exceeds the stability limit")
	ErrUnsupportedMethod = errors.New("unsupported integration method")
	ErrNoElasticDemand   = errors.New("elastic demand is zero")
)

// ParameterError reports a single rejected input value.
type ParameterError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s = %g: %s", e.Name, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// Invalid builds a ParameterError.
func Invalid(name string, value float64, reason string) error {
	return &ParameterError{Name: name, Value: value, Reason: reason}
}

// IsInputError reports whether err was caused by the caller's input rather
// than by a failure inside the computation.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrInvalidParameter,
		ErrTooFewSamples,
		ErrNonMonotonicTime,
		ErrLengthMismatch,
		ErrDomain,
		ErrUnstable,
		ErrUnsupportedMethod,
		ErrNoElasticDemand,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
