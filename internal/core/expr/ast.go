package expr

import (
	"fmt"
	"strings"
)

// expression is a node of the immutable condition tree produced by the
// parser. Trees are built once at rule registration and shared by all
// evaluations, so nodes must never mutate.
type expression interface {
	String() string
}

type identifier struct {
	Name string
}

func (i *identifier) String() string { return i.Name }

// fieldAccess is dotted lookup into nested context maps, e.g.
// data.cpu_usage.
type fieldAccess struct {
	Left  expression
	Field string
}

func (f *fieldAccess) String() string {
	return fmt.Sprintf("%s.%s", f.Left.String(), f.Field)
}

type numberLiteral struct {
	Value float64
}

func (n *numberLiteral) String() string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", n.Value), "0"), ".")
}

type stringLiteral struct {
	Value string
}

func (s *stringLiteral) String() string { return fmt.Sprintf("%q", s.Value) }

type prefixExpression struct {
	Operator string
	Right    expression
}

func (p *prefixExpression) String() string {
	return fmt.Sprintf("(%s%s)", p.Operator, p.Right.String())
}

type infixExpression struct {
	Operator string
	Left     expression
	Right    expression
}

func (i *infixExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", i.Left.String(), i.Operator, i.Right.String())
}
