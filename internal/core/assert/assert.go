// Package assert traps caller-contract violations. A failed assertion means
// arena or lattice bookkeeping would be corrupted if execution continued.
package assert

import "fmt"

// That panics with the formatted message when cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
