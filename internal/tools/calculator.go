package tools

import (
	"fmt"
	"strings"

	"github.com/campusaid/campusaid/internal/log"
)

// CalculatorInput is the model-facing input schema.
type CalculatorInput struct {
	Expression  string `json:"expression" jsonschema_description:"Mathematical expression to evaluate (e.g., '3.5 * 4 + 2.8 * 3')"`
	Description string `json:"description,omitempty" jsonschema_description:"Description of what this calculation represents"`
}

// Calculator evaluates basic arithmetic expressions.
//
// Input is whitelisted to digits, + - * /, parentheses, dots and spaces
// before parsing, so the model can never smuggle anything else through.
type Calculator struct {
	logger log.Logger
}

// NewCalculator creates the calculator adapter.
func NewCalculator(logger log.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// allowedChar reports whether c may appear in an expression.
func allowedChar(c rune) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c == '+' || c == '-' || c == '*' || c == '/':
		return true
	case c == '.' || c == '(' || c == ')' || c == ' ':
		return true
	}
	return false
}

// Run evaluates one expression.
func (c *Calculator) Run(input CalculatorInput) Output {
	expr := input.Expression

	if strings.ContainsFunc(expr, func(r rune) bool { return !allowedChar(r) }) {
		c.logger.Warn("calculator rejected expression", "expression", expr)
		return Output{Text: "Error: Invalid characters in mathematical expression. Only numbers and basic operators (+, -, *, /, parentheses) are allowed."}
	}

	result, err := evaluate(expr)
	if err != nil {
		return Output{Text: fmt.Sprintf("Error calculating expression %q: %v", expr, err)}
	}

	text := fmt.Sprintf("Calculation: %s = %g", expr, result)
	if input.Description != "" {
		text = input.Description + "\n" + text
	}
	return Output{Text: text}
}
