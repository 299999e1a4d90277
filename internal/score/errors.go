package score

import (
	"errors"
	"fmt"
)

// ViolationKind classifies why a solution cannot be scored.
type ViolationKind int

const (
	StructuralMismatch ViolationKind = iota + 1
	OutOfBounds
	Overlap
	InvalidVolume
)

func (k ViolationKind) String() string {
	switch k {
	case StructuralMismatch:
		return "structural_mismatch"
	case OutOfBounds:
		return "out_of_bounds"
	case Overlap:
		return "overlap"
	case InvalidVolume:
		return "invalid_volume"
	default:
		return fmt.Sprintf("violation(%d)", int(k))
	}
}

// ConstraintViolation is returned by Validate and Score. Musician is the
// offending slot, or -1 for whole-solution mismatches. Other is the second
// slot of an Overlap.
type ConstraintViolation struct {
	Kind     ViolationKind
	Musician int
	Other    int
	Detail   string
}

func (e *ConstraintViolation) Error() string {
	switch {
	case e.Kind == Overlap:
		return fmt.Sprintf("%s: musicians %d and %d: %s", e.Kind, e.Musician, e.Other, e.Detail)
	case e.Musician >= 0:
		return fmt.Sprintf("%s: musician %d: %s", e.Kind, e.Musician, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}

// ErrNoFeasibleCandidate is reported by moves that cannot find any valid point.
// It never aborts a run.
var ErrNoFeasibleCandidate = errors.New("no feasible candidate")

// AsViolation unwraps err into a ConstraintViolation.
func AsViolation(err error) (*ConstraintViolation, bool) {
	var cv *ConstraintViolation
	if errors.As(err, &cv) {
		return cv, true
	}
	return nil, false
}
