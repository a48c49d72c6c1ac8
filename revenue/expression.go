package revenue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/scanner"

	"github.com/PaesslerAG/gval"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"banker/models"
)

// Variable names bound when evaluating a revenue expression
const (
	VarTotal    = "x"
	VarAverage  = "a"
	VarAccounts = "n"
	VarHolders  = "c"
	VarGini     = "g"
)

// DefaultExpression is the stock bank revenue formula
const DefaultExpression = "(0.0065 * x) / log(c + 1)"

// ErrInvalidExpression is returned when a formula does not parse or refers to
// names other than the bound variables and built-in functions
var ErrInvalidExpression = errors.New("invalid revenue expression")

var variables = map[string]bool{
	VarTotal: true, VarAverage: true, VarAccounts: true, VarHolders: true, VarGini: true,
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var unaryFunctions = map[string]func(float64) float64{
	"abs":   math.Abs,
	"sqrt":  math.Sqrt,
	"cbrt":  math.Cbrt,
	"exp":   math.Exp,
	"log":   math.Log,
	"log2":  math.Log2,
	"log10": math.Log10,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
}

var binaryFunctions = map[string]func(float64, float64) float64{
	"pow": math.Pow,
	"min": math.Min,
	"max": math.Max,
}

var language = buildLanguage()

func buildLanguage() gval.Language {
	extensions := []gval.Language{gval.Arithmetic()}
	for name, value := range constants {
		extensions = append(extensions, gval.Constant(name, value))
	}
	for name, fn := range unaryFunctions {
		extensions = append(extensions, gval.Function(name, wrapUnary(name, fn)))
	}
	for name, fn := range binaryFunctions {
		extensions = append(extensions, gval.Function(name, wrapBinary(name, fn)))
	}
	return gval.NewLanguage(extensions...)
}

func wrapUnary(name string, fn func(float64) float64) func(...interface{}) (interface{}, error) {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		v, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}

func wrapBinary(name string, fn func(float64, float64) float64) func(...interface{}) (interface{}, error) {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
		}
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return fn(a, b), nil
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// Expression is a validated revenue formula over x, a, n, c and g
type Expression struct {
	source string
	eval   gval.Evaluable
}

// Compile parses and validates a revenue formula. Every identifier must be one
// of the five bound variables, a known constant or a known function, and the
// formula must evaluate to a number.
func Compile(source string) (*Expression, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrInvalidExpression)
	}

	if err := checkIdentifiers(source); err != nil {
		return nil, err
	}

	eval, err := language.NewEvaluable(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	sample := map[string]interface{}{
		VarTotal: 1.0, VarAverage: 1.0, VarAccounts: 1.0, VarHolders: 1.0, VarGini: 1.0,
	}
	if _, err := eval.EvalFloat64(context.Background(), sample); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	return &Expression{source: source, eval: eval}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(source string) *Expression {
	expr, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return expr
}

// checkIdentifiers rejects names outside the variable, constant and function sets
func checkIdentifiers(source string) error {
	var s scanner.Scanner
	s.Init(strings.NewReader(source))
	s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanInts
	s.Error = func(*scanner.Scanner, string) {}

	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if tok != scanner.Ident {
			continue
		}
		name := s.TokenText()
		if variables[name] {
			continue
		}
		if _, ok := constants[name]; ok {
			continue
		}
		if _, ok := unaryFunctions[name]; ok {
			continue
		}
		if _, ok := binaryFunctions[name]; ok {
			continue
		}
		return fmt.Errorf("%w: unknown name %q", ErrInvalidExpression, name)
	}
	return nil
}

// String returns the formula source
func (e *Expression) String() string {
	return e.source
}

// Evaluate binds the variables and evaluates the formula. Evaluation errors
// and non-finite results yield 0. The result is rounded to two decimal places.
func (e *Expression) Evaluate(x, a, n, c, g float64) decimal.Decimal {
	params := map[string]interface{}{
		VarTotal: x, VarAverage: a, VarAccounts: n, VarHolders: c, VarGini: g,
	}

	v, err := e.eval.EvalFloat64(context.Background(), params)
	if err != nil {
		log.WithFields(log.Fields{
			"expression": e.source,
			"error":      err,
		}).Debug("Revenue expression evaluation failed, using 0")
		return decimal.Zero
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}

	return models.RoundAmount(decimal.NewFromFloat(v))
}

// EvaluateStats evaluates the formula over aggregate bank statistics
func (e *Expression) EvaluateStats(stats BankStats) decimal.Decimal {
	return e.Evaluate(
		stats.Total.InexactFloat64(),
		stats.Average.InexactFloat64(),
		float64(stats.Accounts),
		float64(stats.Holders),
		stats.Gini.InexactFloat64(),
	)
}
