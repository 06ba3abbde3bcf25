package std

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ilkoid/poncho-assistants/pkg/tools"
)

// CalculatorArgs - аргументы calculator.
type CalculatorArgs struct {
	Operation string  `json:"operation" jsonschema:"required,enum=add,enum=subtract,enum=multiply,enum=divide,enum=power,description=Arithmetic operation"`
	A         float64 `json:"a" jsonschema:"required,description=Left operand"`
	B         float64 `json:"b" jsonschema:"required,description=Right operand"`
}

// NewCalculatorTool возвращает инструмент calculator.
func NewCalculatorTool() (tools.Tool, error) {
	return tools.NewFuncTool("calculator",
		"Performs a single arithmetic operation on two numbers.",
		func(ctx context.Context, args CalculatorArgs) (string, error) {
			var res float64
			switch args.Operation {
			case "add":
				res = args.A + args.B
			case "subtract":
				res = args.A - args.B
			case "multiply":
				res = args.A * args.B
			case "divide":
				if args.B == 0 {
					return "", fmt.Errorf("division by zero")
				}
				res = args.A / args.B
			case "power":
				res = math.Pow(args.A, args.B)
			default:
				return "", fmt.Errorf("unsupported operation '%s'", args.Operation)
			}
			return strconv.FormatFloat(res, 'f', -1, 64), nil
		})
}

// Builtin собирает все встроенные инструменты в порядке регистрации.
func Builtin() ([]tools.Tool, error) {
	dt, err := NewDateTimeTool(nil)
	if err != nil {
		return nil, err
	}
	calc, err := NewCalculatorTool()
	if err != nil {
		return nil, err
	}
	return []tools.Tool{dt, calc}, nil
}
