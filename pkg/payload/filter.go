package payload

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/vectorcore/internal/encoding"
)

// Operator is a comparison or logical combinator in an Expression
// tree, adapted from the teacher's SQL-oriented FilterExpression to
// evaluate directly against in-memory payloads instead of building a
// WHERE clause.
type Operator string

const (
	And Operator = "AND"
	Or  Operator = "OR"
	Not Operator = "NOT"

	Eq     Operator = "="
	Ne     Operator = "!="
	Gt     Operator = ">"
	Gte    Operator = ">="
	Lt     Operator = "<"
	Lte    Operator = "<="
	In     Operator = "IN"
	Exists Operator = "EXISTS"
)

// Expression is one node of a filter tree. Leaf nodes carry a dot-path
// Field (evaluated via encoding.Payload.Lookup) and a comparison
// Operator; AND/OR/NOT nodes combine Children.
type Expression struct {
	Operator Operator
	Field    string
	Value    interface{}
	Children []*Expression
}

// EqExpr builds an equality leaf.
func EqExpr(field string, value interface{}) *Expression {
	return &Expression{Operator: Eq, Field: field, Value: value}
}

// AndExpr combines expressions with logical AND.
func AndExpr(children ...*Expression) *Expression {
	return &Expression{Operator: And, Children: children}
}

// OrExpr combines expressions with logical OR.
func OrExpr(children ...*Expression) *Expression {
	return &Expression{Operator: Or, Children: children}
}

// NotExpr negates a single child.
func NotExpr(child *Expression) *Expression {
	return &Expression{Operator: Not, Children: []*Expression{child}}
}

// Match evaluates the filter tree against a payload. A nil Expression
// matches everything, matching the "no filter" search path.
func Match(expr *Expression, p encoding.Payload) (bool, error) {
	if expr == nil {
		return true, nil
	}
	switch expr.Operator {
	case And:
		for _, child := range expr.Children {
			ok, err := Match(child, p)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for _, child := range expr.Children {
			ok, err := Match(child, p)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		if len(expr.Children) != 1 {
			return false, fmt.Errorf("payload: NOT requires exactly one child")
		}
		ok, err := Match(expr.Children[0], p)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return matchLeaf(expr, p)
	}
}

func matchLeaf(expr *Expression, p encoding.Payload) (bool, error) {
	value, ok := p.Lookup(expr.Field)
	if expr.Operator == Exists {
		return ok, nil
	}
	if !ok {
		return false, nil
	}

	switch expr.Operator {
	case Eq:
		return compareEqual(value, expr.Value), nil
	case Ne:
		return !compareEqual(value, expr.Value), nil
	case Gt, Gte, Lt, Lte:
		return compareOrdered(expr.Operator, value, expr.Value)
	case In:
		values, ok := expr.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("payload: IN requires a slice value for %q", expr.Field)
		}
		for _, candidate := range values {
			if compareEqual(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("payload: unsupported operator %q", expr.Operator)
	}
}

func compareEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return as == bs
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok && bbok {
		return ab == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(op Operator, a, b interface{}) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case Gt:
			return af > bf, nil
		case Gte:
			return af >= bf, nil
		case Lt:
			return af < bf, nil
		case Lte:
			return af <= bf, nil
		}
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		switch op {
		case Gt:
			return strings.Compare(as, bs) > 0, nil
		case Gte:
			return strings.Compare(as, bs) >= 0, nil
		case Lt:
			return strings.Compare(as, bs) < 0, nil
		case Lte:
			return strings.Compare(as, bs) <= 0, nil
		}
	}
	return false, fmt.Errorf("payload: cannot order-compare %v and %v", a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
