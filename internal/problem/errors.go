package problem

import "errors"

var (
	ErrUnknownProblem   = errors.New("problem: unknown problem class")
	ErrUnknownParameter = errors.New("problem: unknown parameter")
	ErrDimension        = errors.New("problem: dimension mismatch")
	ErrBounds           = errors.New("problem: inconsistent bounds")
)
