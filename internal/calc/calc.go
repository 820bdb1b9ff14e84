// Package calc implements the demo calculator that ships with the
// project scaffold: add or multiply two numbers given on the command
// line.
package calc

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseOperand parses a single command-line operand.
func ParseOperand(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

func Add(a, b float64) float64 {
	return a + b
}

func Multiply(a, b float64) float64 {
	return a * b
}

// Format renders a result without a trailing fractional part for
// integral values, so `5 8` prints 13 rather than 13.000000.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compute parses both operands and returns the formatted sum, or the
// formatted product when multiply is set.
func Compute(a, b string, multiply bool) (string, error) {
	x, err := ParseOperand(a)
	if err != nil {
		return "", err
	}

	y, err := ParseOperand(b)
	if err != nil {
		return "", err
	}

	if multiply {
		return Format(Multiply(x, y)), nil
	}
	return Format(Add(x, y)), nil
}
