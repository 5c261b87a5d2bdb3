package mathutil

import (
	"golang.org/x/exp/constraints"
)

// DivCeil returns a/b rounded towards positive infinity.
func DivCeil[T constraints.Integer](a, b T) T {
	if b == 0 {
		panic("division by zero")
	}

	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}

	return q
}

// Percent returns part as a whole percentage of total, rounded down and
// capped at 100. An empty total counts as complete.
func Percent[T constraints.Integer](part, total T) int {
	if total <= 0 || part >= total {
		return 100
	}

	if part <= 0 {
		return 0
	}

	return int(uint64(part) * 100 / uint64(total))
}
