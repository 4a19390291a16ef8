// Package parser builds an AST from a token stream using recursive
// descent with a two-token (current/peek) lookahead buffer.
package parser

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/skx/tinyc/ast"
	"github.com/skx/tinyc/lexer"
	"github.com/skx/tinyc/token"
)

// ParseError reports a token mismatch against the grammar.
type ParseError struct {
	Expected token.Type
	Saw      token.Type
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("ParseError: expected %s, saw %s", e.Expected, e.Saw)
}

// Parser holds the lexer and a peekable two-token window over it.
//
// The current/peek pair is what resolves the IDENT-at-statement-position
// ambiguity: the parser decides between an assignment and an expression
// statement by inspecting peek without consuming it, rather than
// advancing the underlying lexer destructively to find out.
type Parser struct {
	l *lexer.Lexer

	cur  token.Token
	peek token.Token

	// lexErr is sticky: the first error the lexer reports while filling
	// peek is remembered and surfaces the next time it would matter,
	// since advance has no error return of its own to propagate it
	// through immediately.
	lexErr error
}

// New creates a Parser over the given lexer, priming the current/peek
// window with the first two tokens.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.cur = p.peek
	tok, err := p.l.NextToken()
	if err != nil && p.lexErr == nil {
		p.lexErr = err
	}
	p.peek = tok
}

func (p *Parser) expect(tt token.Type) error {
	if p.lexErr != nil {
		return p.lexErr
	}
	if p.cur.Type != tt {
		return errors.WithStack(&ParseError{Expected: tt, Saw: p.cur.Type})
	}
	p.advance()
	return nil
}

// ParseProgram parses a whole compilation unit: zero or more function
// declarations followed by EOF.
func ParseProgram(l *lexer.Lexer) (*ast.Program, error) {
	p := New(l)

	prog := &ast.Program{}
	for p.cur.Type != token.EOF {
		if p.lexErr != nil {
			return nil, p.lexErr
		}
		fn, err := p.parseFunctionDecl()
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func (p *Parser) parseFunctionDecl() (*ast.FunctionDecl, error) {
	if err := p.expect(token.KEYWORD); err != nil {
		return nil, err
	}
	name := p.cur.Literal
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	var params []*ast.VarDecl
	if p.cur.Type != token.RPAREN {
		param, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		params = append(params, param)
		for p.cur.Type == token.COMMA {
			p.advance()
			param, err := p.parseParam()
			if err != nil {
				return nil, err
			}
			params = append(params, param)
		}
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	body, err := p.parseCompound()
	if err != nil {
		return nil, err
	}

	return &ast.FunctionDecl{Name: name, Params: params, Body: body}, nil
}

func (p *Parser) parseParam() (*ast.VarDecl, error) {
	if err := p.expect(token.KEYWORD); err != nil {
		return nil, err
	}
	name := p.cur.Literal
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}
	return &ast.VarDecl{Name: name, TypeName: "int"}, nil
}

func (p *Parser) parseCompound() (*ast.CompoundStmt, error) {
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}

	compound := &ast.CompoundStmt{}
	for p.cur.Type != token.RBRACE {
		if p.lexErr != nil {
			return nil, p.lexErr
		}
		if p.cur.Type == token.EOF {
			return nil, errors.WithStack(&ParseError{Expected: token.RBRACE, Saw: token.EOF})
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		compound.Stmts = append(compound.Stmts, stmt)
	}

	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return compound, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Type {
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.KEYWORD:
		return p.parseVarDecl()
	case token.RETURN:
		return p.parseReturn()
	default:
		return p.parseAssignOrCall()
	}
}

func (p *Parser) parseIf() (ast.Statement, error) {
	p.advance() // "if"
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseCompound()
	if err != nil {
		return nil, err
	}

	stmt := &ast.If{Cond: cond, Then: then}
	if p.cur.Type == token.ELSE {
		p.advance()
		els, err := p.parseCompound()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (ast.Statement, error) {
	p.advance() // "while"
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseCompound()
	if err != nil {
		return nil, err
	}
	return &ast.While{Cond: cond, Body: body}, nil
}

func (p *Parser) parseVarDecl() (ast.Statement, error) {
	p.advance() // "int"
	name := p.cur.Literal
	if err := p.expect(token.IDENT); err != nil {
		return nil, err
	}

	decl := &ast.VarDecl{Name: name, TypeName: "int"}
	if p.cur.Type == token.ASSIGN {
		p.advance()
		init, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		decl.Initializer = init
	}
	if err := p.expect(token.SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseReturn() (ast.Statement, error) {
	p.advance() // "return"
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.Return{Value: value}, nil
}

// parseAssignOrCall resolves assignment vs. expression-statement by
// peeking one token past an IDENT without consuming either.
func (p *Parser) parseAssignOrCall() (ast.Statement, error) {
	if p.cur.Type == token.IDENT && p.peek.Type == token.ASSIGN {
		name := p.cur.Literal
		p.advance() // IDENT
		p.advance() // "="
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return &ast.Assignment{Target: &ast.Identifier{Name: name}, Value: value}, nil
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.ExpressionStmt{Expr: expr}, nil
}

var comparisonOps = map[token.Type]string{
	token.EQ: "==", token.NEQ: "!=",
	token.LT: "<", token.LE: "<=",
	token.GT: ">", token.GE: ">=",
}

// parseExpression parses the additive level and, optionally, a single
// trailing relational comparison against a second additive expression.
// The grammar fixes +/- and */÷ precedence via the additive/
// multiplicative stratification but doesn't say where comparisons fit,
// so they're given the lowest precedence here, with no chaining
// (a <= b <= c is not valid).
func (p *Parser) parseExpression() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if op, ok := comparisonOps[p.cur.Type]; ok {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.PLUS || p.cur.Type == token.MINUS {
		op := string(p.cur.Type)
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (ast.Expression, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.ASTERISK || p.cur.Type == token.SLASH {
		op := string(p.cur.Type)
		p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseFactor() (ast.Expression, error) {
	switch p.cur.Type {
	case token.NUMBER:
		lit := p.cur.Literal
		p.advance()
		var v int64
		if _, err := fmt.Sscanf(lit, "%d", &v); err != nil {
			return nil, errors.Wrapf(err, "ParseError: malformed integer literal %q", lit)
		}
		return &ast.Number{Value: v}, nil

	case token.IDENT:
		name := p.cur.Literal
		p.advance()
		if p.cur.Type != token.LPAREN {
			return &ast.Identifier{Name: name}, nil
		}
		p.advance() // "("
		var args []ast.Expression
		if p.cur.Type != token.RPAREN {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			for p.cur.Type == token.COMMA {
				p.advance()
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
			}
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.FunctionCall{Name: name, Args: args}, nil

	case token.LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}

	if p.lexErr != nil {
		return nil, p.lexErr
	}
	return nil, errors.WithStack(&ParseError{Expected: token.NUMBER, Saw: p.cur.Type})
}
