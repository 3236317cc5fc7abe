package builtin

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"

	"github.com/shannon-run/llm-gateway/internal/tools"
)

// calculatorFuncs is the whitelist of callable functions (spec §4.7
// calculator: "whitelisted operators/functions").
var calculatorFuncs = map[string]func(args []float64) (float64, error){
	"sqrt":  func(a []float64) (float64, error) { return math.Sqrt(a[0]), nil },
	"abs":   func(a []float64) (float64, error) { return math.Abs(a[0]), nil },
	"floor": func(a []float64) (float64, error) { return math.Floor(a[0]), nil },
	"ceil":  func(a []float64) (float64, error) { return math.Ceil(a[0]), nil },
	"round": func(a []float64) (float64, error) { return math.Round(a[0]), nil },
	"min":   func(a []float64) (float64, error) { return math.Min(a[0], a[1]), nil },
	"max":   func(a []float64) (float64, error) { return math.Max(a[0], a[1]), nil },
	"pow":   func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil },
	"log":   func(a []float64) (float64, error) { return math.Log(a[0]), nil },
	"log2":  func(a []float64) (float64, error) { return math.Log2(a[0]), nil },
	"log10": func(a []float64) (float64, error) { return math.Log10(a[0]), nil },
	"sin":   func(a []float64) (float64, error) { return math.Sin(a[0]), nil },
	"cos":   func(a []float64) (float64, error) { return math.Cos(a[0]), nil },
	"tan":   func(a []float64) (float64, error) { return math.Tan(a[0]), nil },
}

// CalculatorTool implements the spec §4.7 calculator built-in: "safe AST-walk
// expression eval, whitelisted operators/functions" — no other example in
// the retrieval pack ships a safe expression evaluator, so this walks
// Go's own go/parser AST (a stdlib package, not a third-party expression
// library) and rejects every node kind except literals, binary/unary
// arithmetic, parens, and the whitelisted call forms above. See DESIGN.md
// for why go/parser was chosen over hand-rolling a tokenizer.
type CalculatorTool struct{}

// NewCalculatorTool constructs the calculator built-in.
func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (c *CalculatorTool) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression using +, -, *, /, %%, ** and whitelisted math functions.",
		Category:    "builtin",
	}
}

func (c *CalculatorTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "expression", Type: tools.ParamString, Required: true, Description: "Arithmetic expression, e.g. \"sqrt(2)*3 + 1\""},
	}
}

func (c *CalculatorTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	expr, _ := params["expression"].(string)
	value, err := evaluateExpression(expr)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	return tools.Result{Success: true, Output: map[string]any{"result": value}}, nil
}

func evaluateExpression(expr string) (float64, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	return evalNode(node)
}

func evalNode(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal kind")
		}
		var f float64
		if _, err := fmt.Sscanf(n.Value, "%g", &f); err != nil {
			return 0, fmt.Errorf("invalid numeric literal %q", n.Value)
		}
		return f, nil
	case *ast.ParenExpr:
		return evalNode(n.X)
	case *ast.UnaryExpr:
		v, err := evalNode(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -v, nil
		case token.ADD:
			return v, nil
		default:
			return 0, fmt.Errorf("unsupported unary operator %s", n.Op)
		}
	case *ast.BinaryExpr:
		left, err := evalNode(n.X)
		if err != nil {
			return 0, err
		}
		right, err := evalNode(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return left + right, nil
		case token.SUB:
			return left - right, nil
		case token.MUL:
			return left * right, nil
		case token.QUO:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		case token.REM:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return math.Mod(left, right), nil
		case token.XOR:
			return math.Pow(left, right), nil // "**" parses as "^" in go/parser
		default:
			return 0, fmt.Errorf("unsupported operator %s", n.Op)
		}
	case *ast.CallExpr:
		ident, ok := n.Fun.(*ast.Ident)
		if !ok {
			return 0, fmt.Errorf("unsupported call target")
		}
		fn, ok := calculatorFuncs[ident.Name]
		if !ok {
			return 0, fmt.Errorf("unknown function %q", ident.Name)
		}
		args := make([]float64, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := evalNode(a)
			if err != nil {
				return 0, err
			}
			args = append(args, v)
		}
		return fn(args)
	case *ast.Ident:
		switch n.Name {
		case "pi":
			return math.Pi, nil
		case "e":
			return math.E, nil
		default:
			return 0, fmt.Errorf("unknown identifier %q", n.Name)
		}
	default:
		return 0, fmt.Errorf("unsupported expression node %T", node)
	}
}
