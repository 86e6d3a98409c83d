package filter

import (
	"math"
	"strings"

	"github.com/calvinalkan/docstore/internal/index"
	"github.com/calvinalkan/docstore/internal/value"
)

// IndexSource is the subset of *index.Manager the evaluator's fast path
// needs. *index.Manager satisfies this interface structurally, keeping the
// AST itself free of any reference to the store or its collaborators.
type IndexSource interface {
	SearchEquals(path string, v value.Value) map[string]struct{}
	SearchGreaterThan(path string, v value.Value) map[string]struct{}
	SearchGreaterOrEquals(path string, v value.Value) map[string]struct{}
	SearchLessThan(path string, v value.Value) map[string]struct{}
	SearchLessOrEquals(path string, v value.Value) map[string]struct{}
	SearchContains(path, needle string) map[string]struct{}
	SearchLike(path, pattern string) map[string]struct{}
}

// EntitySource exposes the live entities the scan path iterates over.
type EntitySource interface {
	AllIDs() []string
	Fields(id string) *value.OrderedMap
}

// Evaluate returns the set of ids matching node against idx and entities,
// choosing the index fast path or the full scan path per comparison.
func Evaluate(node *FilterNode, idx IndexSource, entities EntitySource) map[string]struct{} {
	if node == nil {
		return map[string]struct{}{}
	}

	switch node.Kind {
	case FilterAnd:
		return intersect(Evaluate(node.Left, idx, entities), Evaluate(node.Right, idx, entities))
	case FilterOr:
		return union(Evaluate(node.Left, idx, entities), Evaluate(node.Right, idx, entities))
	case FilterNot:
		return difference(allIDSet(entities), Evaluate(node.Operand, idx, entities))
	case FilterComparison:
		return evaluateComparison(node, idx, entities)
	default:
		return map[string]struct{}{}
	}
}

func evaluateComparison(node *FilterNode, idx IndexSource, entities EntitySource) map[string]struct{} {
	if node.Path == "" {
		return allIDSet(entities)
	}

	if canUseFastPath(node) {
		return evaluateFastPath(node, idx, entities)
	}

	return evaluateScanPath(node, entities)
}

func canUseFastPath(node *FilterNode) bool {
	if !node.Value.IsPureLiteral() {
		return false
	}

	if node.Op == OpContains || node.Op == OpLike {
		return node.Value.Literal.Kind == value.String
	}

	return true
}

func evaluateFastPath(node *FilterNode, idx IndexSource, entities EntitySource) map[string]struct{} {
	lit := node.Value.Literal

	switch node.Op {
	case OpEq:
		return idx.SearchEquals(node.Path, lit)
	case OpNeq:
		return difference(allIDSet(entities), idx.SearchEquals(node.Path, lit))
	case OpGt:
		return idx.SearchGreaterThan(node.Path, lit)
	case OpGte:
		return idx.SearchGreaterOrEquals(node.Path, lit)
	case OpLt:
		return idx.SearchLessThan(node.Path, lit)
	case OpLte:
		return idx.SearchLessOrEquals(node.Path, lit)
	case OpContains:
		return idx.SearchContains(node.Path, lit.String())
	case OpLike:
		return idx.SearchLike(node.Path, lit.String())
	default:
		return map[string]struct{}{}
	}
}

func evaluateScanPath(node *FilterNode, entities EntitySource) map[string]struct{} {
	out := make(map[string]struct{})

	for _, id := range entities.AllIDs() {
		fields := entities.Fields(id)

		left := value.ResolvePath(value.MapValue(fields), node.Path)
		right := evalValueExpr(node.Value, fields)

		if compareOp(left, right, node.Op) {
			out[id] = struct{}{}
		}
	}

	return out
}

// EvaluateValue evaluates a standalone value expression against fields
// (nil fields resolve every field reference to null). This is the entry
// point for value expressions parsed via [ParseValueExpression] outside of
// a comparison.
func EvaluateValue(node *ValueNode, fields *value.OrderedMap) value.Value {
	return evalValueExpr(node, fields)
}

func evalValueExpr(node *ValueNode, fields *value.OrderedMap) value.Value {
	if node == nil {
		return value.NullValue()
	}

	switch node.Kind {
	case ValLiteral:
		return node.Literal
	case ValFieldRef:
		return value.ResolvePath(value.MapValue(fields), node.Path)
	case ValUnaryNeg:
		operand := evalValueExpr(node.Operand, fields)

		return value.NumberValue(-coerceToFloat(operand))
	case ValBinary:
		left := evalValueExpr(node.Left, fields)
		right := evalValueExpr(node.Right, fields)

		return applyArith(node.Op, left, right)
	default:
		return value.NullValue()
	}
}

// applyArith implements numeric coercion (null becomes 0) when either side
// is a number, string concatenation for "+" between two non-numbers, and
// null otherwise.
func applyArith(op ArithOp, l, r value.Value) value.Value {
	if l.Kind == value.Number || r.Kind == value.Number {
		lf := coerceToFloat(l)
		rf := coerceToFloat(r)

		switch op {
		case ArithAdd:
			return value.NumberValue(lf + rf)
		case ArithSub:
			return value.NumberValue(lf - rf)
		case ArithMul:
			return value.NumberValue(lf * rf)
		case ArithDiv:
			return value.NumberValue(lf / rf)
		}

		return value.NullValue()
	}

	if op == ArithAdd {
		return value.StringValue(value.ToString(l) + value.ToString(r))
	}

	return value.NullValue()
}

// coerceToFloat implements "both are coerced to double (null becomes 0)";
// a non-null value that can't be parsed as a number coerces to NaN so it
// propagates through IEEE arithmetic/comparisons rather than silently
// becoming a valid number.
func coerceToFloat(v value.Value) float64 {
	if v.IsNull() {
		return 0
	}

	if f, ok := value.ToFloat64(v); ok {
		return f
	}

	return math.NaN()
}

// compareOp compares l against r for op: contains/like require a string
// left operand, null on either side falls back to equality/inequality only,
// numeric operands compare as floats, and everything else compares by
// structural equality and [value.Less], so an ordering between two different
// variants is false.
func compareOp(l, r value.Value, op CompareOp) bool {
	if op == OpContains {
		if l.Kind != value.String {
			return false
		}

		return strings.Contains(strings.ToLower(l.String()), strings.ToLower(needle(r)))
	}

	if op == OpLike {
		if l.Kind != value.String {
			return false
		}

		pattern := index.CompileLike(needle(r))

		return pattern.MatchString(strings.ToLower(l.String()))
	}

	if l.IsNull() || r.IsNull() {
		switch op {
		case OpEq:
			return value.Equal(l, r)
		case OpNeq:
			return !value.Equal(l, r)
		default:
			return false
		}
	}

	if l.Kind == value.Number || r.Kind == value.Number {
		lf, lok := value.ToFloat64(l)
		rf, rok := value.ToFloat64(r)

		if !lok || !rok {
			return false
		}

		switch op {
		case OpEq:
			return lf == rf
		case OpNeq:
			return lf != rf
		case OpGt:
			return lf > rf
		case OpGte:
			return lf >= rf
		case OpLt:
			return lf < rf
		case OpLte:
			return lf <= rf
		default:
			return false
		}
	}

	switch op {
	case OpEq:
		return value.Equal(l, r)
	case OpNeq:
		return !value.Equal(l, r)
	case OpGt:
		return lessThan(r, l)
	case OpGte:
		return value.Equal(l, r) || lessThan(r, l)
	case OpLt:
		return lessThan(l, r)
	case OpLte:
		return value.Equal(l, r) || lessThan(l, r)
	default:
		return false
	}
}

func lessThan(a, b value.Value) bool {
	res, ok := value.Less(a, b)

	return ok && res
}

func needle(v value.Value) string {
	if v.Kind == value.String {
		return v.String()
	}

	return value.ToString(v)
}

func allIDSet(entities EntitySource) map[string]struct{} {
	out := make(map[string]struct{})

	for _, id := range entities.AllIDs() {
		out[id] = struct{}{}
	}

	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})

	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}

	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}

	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))

	for id := range a {
		out[id] = struct{}{}
	}

	for id := range b {
		out[id] = struct{}{}
	}

	return out
}

func difference(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})

	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}

	return out
}
