package utils

import (
	"fmt"
)

// PresentableETA formats a countdown in seconds for display
func PresentableETA(etaSeconds int64) string {
	D := int64(30)
	S := int64(90)

	if etaSeconds <= D {
		return "due"
	}
	if etaSeconds < S {
		return fmt.Sprintf("%d sec", etaSeconds)
	}
	mins := etaSeconds / 60
	return fmt.Sprintf("%d min%s", mins, ternary(mins == 1, "", "s"))
}

func ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
