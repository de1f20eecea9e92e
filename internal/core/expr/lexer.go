package expr

// tokenType identifies a lexical token in a rule condition.
type tokenType int

const (
	tokenIllegal tokenType = iota
	tokenEOF

	tokenIdent
	tokenNumber
	tokenString

	tokenEQ     // ==
	tokenNotEQ  // !=
	tokenLT     // <
	tokenGT     // >
	tokenLTE    // <=
	tokenGTE    // >=
	tokenAnd    // and, &&
	tokenOr     // or, ||
	tokenNot    // not, !
	tokenDot    // .
	tokenLParen // (
	tokenRParen // )
)

type token struct {
	Type    tokenType
	Literal string
	Column  int
}

var keywords = map[string]tokenType{
	"and": tokenAnd,
	"or":  tokenOr,
	"not": tokenNot,
}

// lexer walks a condition string byte by byte. Conditions are short
// single-line strings, so there is no line tracking.
type lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *lexer) nextToken() token {
	l.skipWhitespace()

	tok := token{Column: l.position}

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = tokenEQ, "=="
		} else {
			tok.Type, tok.Literal = tokenIllegal, string(l.ch)
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = tokenNotEQ, "!="
		} else {
			tok.Type, tok.Literal = tokenNot, "!"
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = tokenLTE, "<="
		} else {
			tok.Type, tok.Literal = tokenLT, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = tokenGTE, ">="
		} else {
			tok.Type, tok.Literal = tokenGT, ">"
		}
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			tok.Type, tok.Literal = tokenAnd, "&&"
		} else {
			tok.Type, tok.Literal = tokenIllegal, string(l.ch)
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok.Type, tok.Literal = tokenOr, "||"
		} else {
			tok.Type, tok.Literal = tokenIllegal, string(l.ch)
		}
	case '.':
		tok.Type, tok.Literal = tokenDot, "."
	case '(':
		tok.Type, tok.Literal = tokenLParen, "("
	case ')':
		tok.Type, tok.Literal = tokenRParen, ")"
	case '"', '\'':
		quote := l.ch
		lit, terminated := l.readString(quote)
		if terminated {
			tok.Type, tok.Literal = tokenString, lit
		} else {
			// Unterminated literal: surface the raw text so the parser
			// rejects the condition instead of guessing the intent.
			tok.Type, tok.Literal = tokenIllegal, string(quote)+lit
		}
	case 0:
		tok.Type, tok.Literal = tokenEOF, ""
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			if kw, ok := keywords[tok.Literal]; ok {
				tok.Type = kw
			} else {
				tok.Type = tokenIdent
			}
			return tok
		}
		if isDigit(l.ch) {
			tok.Type = tokenNumber
			tok.Literal = l.readNumber()
			return tok
		}
		tok.Type, tok.Literal = tokenIllegal, string(l.ch)
	}

	l.readChar()
	return tok
}

func (l *lexer) readIdentifier() string {
	start := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *lexer) readNumber() string {
	start := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.position]
}

func (l *lexer) readString(quote byte) (string, bool) {
	start := l.position + 1
	for {
		l.readChar()
		if l.ch == quote {
			return l.input[start:l.position], true
		}
		if l.ch == 0 {
			return l.input[start:l.position], false
		}
	}
}

func (l *lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
