package tools

import (
	"strings"
	"testing"

	"github.com/campusaid/campusaid/internal/log"
)

func TestCalculator_Run(t *testing.T) {
	calc := NewCalculator(log.NewNop())

	t.Run("gpa calculation", func(t *testing.T) {
		out := calc.Run(CalculatorInput{Expression: "3.5 * 4 + 2.8 * 3"})
		if out.Text != "Calculation: 3.5 * 4 + 2.8 * 3 = 22.4" {
			t.Errorf("Text = %q", out.Text)
		}
	})

	t.Run("description prefix", func(t *testing.T) {
		out := calc.Run(CalculatorInput{
			Expression:  "12 * 150",
			Description: "Total credit cost",
		})
		want := "Total credit cost\nCalculation: 12 * 150 = 1800"
		if out.Text != want {
			t.Errorf("Text = %q, want %q", out.Text, want)
		}
	})

	t.Run("rejects injection attempt", func(t *testing.T) {
		out := calc.Run(CalculatorInput{Expression: "DROP TABLE passages"})
		if !strings.HasPrefix(out.Text, "Error: Invalid characters") {
			t.Errorf("Text = %q, want invalid characters error", out.Text)
		}
	})

	t.Run("rejects letters", func(t *testing.T) {
		out := calc.Run(CalculatorInput{Expression: "2 + two"})
		if !strings.HasPrefix(out.Text, "Error: Invalid characters") {
			t.Errorf("Text = %q, want invalid characters error", out.Text)
		}
	})

	t.Run("division by zero folded into text", func(t *testing.T) {
		out := calc.Run(CalculatorInput{Expression: "1 / 0"})
		if !strings.Contains(out.Text, "division by zero") {
			t.Errorf("Text = %q, want division by zero", out.Text)
		}
		if !strings.HasPrefix(out.Text, "Error calculating expression") {
			t.Errorf("Text = %q, want error prefix", out.Text)
		}
	})

	t.Run("malformed expression folded into text", func(t *testing.T) {
		out := calc.Run(CalculatorInput{Expression: "1 +"})
		if !strings.HasPrefix(out.Text, "Error calculating expression") {
			t.Errorf("Text = %q, want error prefix", out.Text)
		}
	})

	t.Run("no sources for calculations", func(t *testing.T) {
		out := calc.Run(CalculatorInput{Expression: "1 + 1"})
		if len(out.Sources) != 0 {
			t.Errorf("Sources = %v, want empty", out.Sources)
		}
	})
}
