package tools

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

// CalculatorTool does the arithmetic models get wrong: position sizing,
// percentage moves, order totals.
type CalculatorTool struct{}

type calcArgs struct {
	Op string  `json:"op"`
	A  float64 `json:"a"`
	B  float64 `json:"b"`
}

func (c *CalculatorTool) Name() string { return "calculator" }
func (c *CalculatorTool) Description() string {
	return "Perform arithmetic on two numbers. ops: add, sub, mul, div, pow, sqrt (uses a only), pct_change (from a to b, in percent)."
}

func (c *CalculatorTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"op": map[string]interface{}{"type": "string", "enum": []string{"add", "sub", "mul", "div", "pow", "sqrt", "pct_change"}},
		"a":  map[string]interface{}{"type": "number"},
		"b":  map[string]interface{}{"type": "number"},
	}, "op", "a")
}

func (c *CalculatorTool) Execute(ctx context.Context, input string) (string, error) {
	args, err := DecodeArgs[calcArgs](input)
	if err != nil {
		return "", err
	}
	a, b := args.A, args.B

	var res float64
	switch strings.ToLower(args.Op) {
	case "add":
		res = a + b
	case "sub":
		res = a - b
	case "mul":
		res = a * b
	case "div":
		if b == 0 {
			return "", errors.New("division by zero")
		}
		res = a / b
	case "pow":
		res = math.Pow(a, b)
	case "sqrt":
		if a < 0 {
			return "", errors.New("sqrt of negative")
		}
		res = math.Sqrt(a)
	case "pct_change":
		if a == 0 {
			return "", errors.New("pct_change from zero")
		}
		res = (b - a) / a * 100
	default:
		return "", errors.New("unknown op " + strconv.Quote(args.Op))
	}
	return strconv.FormatFloat(res, 'f', -1, 64), nil
}

var _ Tool = (*CalculatorTool)(nil)
