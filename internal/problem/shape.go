package problem

import "strings"

// Shape is a set of problem representations.
type Shape uint8

const (
	ShapeOCP Shape = 1 << iota
	ShapeQP
)

// Has reports whether every representation in o is in s.
func (s Shape) Has(o Shape) bool { return o != 0 && s&o == o }

// Overlaps reports whether s and o share a representation.
func (s Shape) Overlaps(o Shape) bool { return s&o != 0 }

func (s Shape) String() string {
	var parts []string
	if s&ShapeOCP != 0 {
		parts = append(parts, "ocp")
	}
	if s&ShapeQP != 0 {
		parts = append(parts, "qp")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
