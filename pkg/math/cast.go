package math

import (
	"fmt"
	"log"

	"golang.org/x/exp/constraints"
)

// SafeCastTo converts from to T and fails when the value does not survive the conversion.
func SafeCastTo[T, F constraints.Integer](from F) (T, error) {
	to := T(from)
	if F(to) != from || (to < 0) != (from < 0) {
		return T(0), fmt.Errorf("value(%v) is out of range of %T", from, to)
	}
	return to, nil
}

func CastTo[T, F constraints.Integer](from F) T {
	return T(from)
}

func MustSafeCastTo[T, F constraints.Integer](from F) T {
	to, err := SafeCastTo[T](from)
	if err != nil {
		log.Panicf("value (%v) out of bounds for type %T", from, T(0))
	}
	return to
}
