// Package lexer turns program source into a stream of tokens.
package lexer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/skx/tinyc/token"
)

// LexError reports a byte the lexer has no rule for.
type LexError struct {
	Byte byte
}

// Error implements the error interface.
func (e *LexError) Error() string {
	return fmt.Sprintf("LexError: unexpected byte %q", e.Byte)
}

// Lexer holds our scanning state over a byte slice.
//
// It is a pull-model, single-byte-lookahead scanner: each call to
// NextToken consumes exactly the bytes that make up the token it
// returns, never more. Once the input is exhausted every further call
// returns EOF.
type Lexer struct {
	input []byte
	pos   int // current reading position
}

// New creates a Lexer over the given source text.
func New(input string) *Lexer {
	return &Lexer{input: []byte(input)}
}

func (l *Lexer) ch() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peek() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isAlnum(b byte) bool {
	return isAlpha(b) || isDigit(b)
}

// NextToken returns the next token in the stream.
func (l *Lexer) NextToken() (token.Token, error) {
	for isSpace(l.ch()) {
		l.pos++
	}

	if l.pos >= len(l.input) {
		return token.Token{Type: token.EOF}, nil
	}

	b := l.ch()

	switch {
	case isAlpha(b):
		start := l.pos
		for isAlnum(l.ch()) {
			l.pos++
		}
		word := string(l.input[start:l.pos])
		return token.Token{Type: token.LookupIdentifier(word), Literal: word}, nil

	case isDigit(b):
		start := l.pos
		for isDigit(l.ch()) {
			l.pos++
		}
		return token.Token{Type: token.NUMBER, Literal: string(l.input[start:l.pos])}, nil
	}

	// Two-character operators must be recognised before their
	// single-character prefixes.
	if two, ok := l.twoCharOp(b, l.peek()); ok {
		l.pos += 2
		return two, nil
	}

	if tt, ok := singleCharTokens[b]; ok {
		l.pos++
		return token.Token{Type: tt, Literal: string(b)}, nil
	}

	return token.Token{}, errors.WithStack(&LexError{Byte: b})
}

var singleCharTokens = map[byte]token.Type{
	'+': token.PLUS,
	'-': token.MINUS,
	'*': token.ASTERISK,
	'/': token.SLASH,
	'(': token.LPAREN,
	')': token.RPAREN,
	';': token.SEMICOLON,
	'=': token.ASSIGN,
	'{': token.LBRACE,
	'}': token.RBRACE,
	',': token.COMMA,
	'<': token.LT,
	'>': token.GT,
}

// twoCharOp recognises ==, !=, <=, >=. Note that '!' has no
// single-character meaning in this grammar, so a lone '!' is only ever
// valid as the start of "!=".
func (l *Lexer) twoCharOp(b, next byte) (token.Token, bool) {
	if next != '=' {
		return token.Token{}, false
	}
	switch b {
	case '=':
		return token.Token{Type: token.EQ, Literal: "=="}, true
	case '!':
		return token.Token{Type: token.NEQ, Literal: "!="}, true
	case '<':
		return token.Token{Type: token.LE, Literal: "<="}, true
	case '>':
		return token.Token{Type: token.GE, Literal: ">="}, true
	}
	return token.Token{}, false
}
