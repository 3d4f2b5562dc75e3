package domain

import "errors"

// Error taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidParameter: γ<=0, dimension mismatches, non-positive counts. Fatal.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNumericalInstability: a covariance could not be repaired into a factorizable matrix.
	// Singular or mildly non-PSD inputs are repaired locally and never reach callers.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrInsufficientData: too few observations for the requested statistic.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateScenario: a scenario collapsed to a state with no meaningful risk figures.
	ErrDegenerateScenario = errors.New("degenerate scenario")
)
