package expr

import (
	"fmt"
	"strconv"

	"github.com/streamflow/analytics-core/pkg/errors"
)

// Operator precedence, lowest binds loosest. not sits between the
// boolean combinators and the comparisons, so "not count > 0" negates
// the whole comparison rather than the operand.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precEquals
	precCompare
	precDot
)

var precedences = map[tokenType]int{
	tokenOr:    precOr,
	tokenAnd:   precAnd,
	tokenEQ:    precEquals,
	tokenNotEQ: precEquals,
	tokenLT:    precCompare,
	tokenGT:    precCompare,
	tokenLTE:   precCompare,
	tokenGTE:   precCompare,
	tokenDot:   precDot,
}

type (
	prefixParseFn func() expression
	infixParseFn  func(expression) expression
)

type parser struct {
	l *lexer

	curToken  token
	peekToken token

	problems []string

	prefixParseFns map[tokenType]prefixParseFn
	infixParseFns  map[tokenType]infixParseFn
}

func newParser(l *lexer) *parser {
	p := &parser{l: l}

	p.prefixParseFns = map[tokenType]prefixParseFn{
		tokenIdent:  p.parseIdentifier,
		tokenNumber: p.parseNumberLiteral,
		tokenString: p.parseStringLiteral,
		tokenNot:    p.parsePrefixExpression,
		tokenLParen: p.parseGroupedExpression,
	}
	p.infixParseFns = map[tokenType]infixParseFn{
		tokenEQ:    p.parseInfixExpression,
		tokenNotEQ: p.parseInfixExpression,
		tokenLT:    p.parseInfixExpression,
		tokenGT:    p.parseInfixExpression,
		tokenLTE:   p.parseInfixExpression,
		tokenGTE:   p.parseInfixExpression,
		tokenAnd:   p.parseInfixExpression,
		tokenOr:    p.parseInfixExpression,
		tokenDot:   p.parseDotExpression,
	}

	// Prime curToken and peekToken.
	p.nextToken()
	p.nextToken()

	return p
}

// parse consumes the whole input and returns the expression tree.
// Trailing tokens after a complete expression are a parse problem,
// not silently ignored.
func (p *parser) parse() expression {
	if p.curToken.Type == tokenEOF {
		p.addProblem("empty condition")
		return nil
	}

	root := p.parseExpression(precLowest)

	if p.peekToken.Type != tokenEOF {
		p.addProblem(fmt.Sprintf("unexpected %q at column %d", p.peekToken.Literal, p.peekToken.Column))
	}

	return root
}

func (p *parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.nextToken()
}

func (p *parser) parseExpression(precedence int) expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.addProblem(fmt.Sprintf("unexpected %q at column %d", p.curToken.Literal, p.curToken.Column))
		return nil
	}
	left := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}

	return left
}

func (p *parser) parseIdentifier() expression {
	return &identifier{Name: p.curToken.Literal}
}

func (p *parser) parseNumberLiteral() expression {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addProblem(fmt.Sprintf("could not parse %q as number", p.curToken.Literal))
		return nil
	}
	return &numberLiteral{Value: value}
}

func (p *parser) parseStringLiteral() expression {
	return &stringLiteral{Value: p.curToken.Literal}
}

func (p *parser) parsePrefixExpression() expression {
	exp := &prefixExpression{Operator: "not"}
	p.nextToken()
	exp.Right = p.parseExpression(precNot)
	return exp
}

func (p *parser) parseInfixExpression(left expression) expression {
	exp := &infixExpression{
		Operator: normalizeOperator(p.curToken),
		Left:     left,
	}
	precedence := precedences[p.curToken.Type]
	p.nextToken()
	exp.Right = p.parseExpression(precedence)
	return exp
}

func (p *parser) parseDotExpression(left expression) expression {
	p.nextToken()
	if p.curToken.Type != tokenIdent {
		p.addProblem(fmt.Sprintf("expected field name after '.', got %q", p.curToken.Literal))
		return left
	}
	return &fieldAccess{Left: left, Field: p.curToken.Literal}
}

func (p *parser) parseGroupedExpression() expression {
	p.nextToken()
	exp := p.parseExpression(precLowest)
	if p.peekToken.Type != tokenRParen {
		p.addProblem("missing closing parenthesis")
		return exp
	}
	p.nextToken()
	return exp
}

func (p *parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return precLowest
}

func (p *parser) addProblem(msg string) {
	p.problems = append(p.problems, msg)
}

// normalizeOperator collapses the symbol aliases (&&, ||) onto the
// word forms so the evaluator switches on a single spelling.
func normalizeOperator(tok token) string {
	switch tok.Type {
	case tokenAnd:
		return "and"
	case tokenOr:
		return "or"
	default:
		return tok.Literal
	}
}

// Compile parses a condition string into a reusable Program. Malformed
// conditions are rejected here, at registration time, so evaluation
// never sees an unparsable rule.
func Compile(condition string) (*Program, error) {
	p := newParser(newLexer(condition))
	root := p.parse()

	if len(p.problems) > 0 {
		return nil, &errors.ParseError{Condition: condition, Problems: p.problems}
	}
	if root == nil {
		return nil, &errors.ParseError{Condition: condition, Problems: []string{"empty expression"}}
	}

	return &Program{source: condition, root: root}, nil
}
