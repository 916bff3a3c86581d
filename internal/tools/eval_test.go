package tools

import (
	"errors"
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{"single number", "42", 42},
		{"decimal", "3.14", 3.14},
		{"addition", "1 + 2", 3},
		{"subtraction", "10 - 4", 6},
		{"multiplication", "6 * 7", 42},
		{"division", "15 / 4", 3.75},
		{"precedence", "2 + 3 * 4", 14},
		{"gpa style", "3.5 * 4 + 2.8 * 3", 22.4},
		{"parentheses", "(2 + 3) * 4", 20},
		{"nested parentheses", "((1 + 2) * (3 + 4))", 21},
		{"unary minus", "-5 + 8", 3},
		{"double unary", "--5", 5},
		{"unary in expression", "2 * -3", -6},
		{"left associative subtraction", "10 - 3 - 2", 5},
		{"left associative division", "100 / 5 / 2", 10},
		{"leading dot", ".5 * 4", 2},
		{"no spaces", "3.5*4+2.8*3", 22.4},
		{"extra spaces", "  1   +   1  ", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate(tt.expr)
			if err != nil {
				t.Fatalf("evaluate(%q) = %v", tt.expr, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"only spaces", "   "},
		{"dangling operator", "1 +"},
		{"leading operator", "* 2"},
		{"missing close paren", "(1 + 2"},
		{"stray close paren", "1 + 2)"},
		{"double dot", "1.2.3"},
		{"bare dot", "."},
		{"adjacent numbers", "1 2"},
		{"empty parens", "()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := evaluate(tt.expr); err == nil {
				t.Errorf("evaluate(%q) = nil, want error", tt.expr)
			}
		})
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	if _, err := evaluate("1 / 0"); !errors.Is(err, errDivisionByZero) {
		t.Errorf("evaluate(1 / 0) = %v, want errDivisionByZero", err)
	}
	if _, err := evaluate("5 / (2 - 2)"); !errors.Is(err, errDivisionByZero) {
		t.Errorf("evaluate(5 / (2 - 2)) = %v, want errDivisionByZero", err)
	}
}
