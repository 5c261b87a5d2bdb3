package must

import "fmt"

// Be panics with a formatted message when expr is false. It guards invariants
// that only a programming error can break.
func Be(expr bool, format string, args ...any) {
	if !expr {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}
