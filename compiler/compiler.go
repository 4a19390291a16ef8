// Package compiler wires the six pipeline stages -- lexer, parser,
// semantic analyzer, IR generator, optimizer, emitter -- into the single
// Compile call the CLI shell drives: construct once with New, configure
// with the Set* methods, then run the whole pipeline with one terminal
// call that fails fast on the first stage error.
package compiler

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/skx/tinyc/diagnostics"
	"github.com/skx/tinyc/emitter"
	"github.com/skx/tinyc/irgen"
	"github.com/skx/tinyc/lexer"
	"github.com/skx/tinyc/optimizer"
	"github.com/skx/tinyc/parser"
	"github.com/skx/tinyc/semantic"
	"github.com/skx/tinyc/token"
)

// Compiler holds the state needed to run one compilation unit through
// the pipeline: the source text, and the knobs (debug dumps, optimizer
// level) that shape how Compile runs.
type Compiler struct {
	source   string
	debug    bool
	optLevel optimizer.Level

	// Dumps is where phase-by-phase diagnostic output goes when debug
	// mode is on. It defaults to os.Stdout.
	Dumps io.Writer

	log *logrus.Logger
}

// New creates a Compiler over the given source text, optimizing at O2 by
// default, with diagnostics off.
func New(source string) *Compiler {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return &Compiler{
		source:   source,
		Dumps:    os.Stdout,
		log:      log,
		optLevel: optimizer.O2,
	}
}

// SetDebug turns phase-by-phase diagnostic dumps and verbose pipeline
// logging on or off.
func (c *Compiler) SetDebug(val bool) {
	c.debug = val
	if val {
		c.log.SetLevel(logrus.DebugLevel)
	} else {
		c.log.SetLevel(logrus.WarnLevel)
	}
}

// SetOptLevel selects which bundle of optimizer passes Compile runs.
func (c *Compiler) SetOptLevel(level optimizer.Level) {
	c.optLevel = level
}

// Compile runs lexing, parsing, semantic analysis, IR generation,
// optimization, and emission in that order, returning the generated
// assembly text. The first stage to fail aborts the pipeline: no later
// stage runs, and the caller gets that single error back.
func (c *Compiler) Compile() (string, error) {
	c.log.Debug("phase: lex")
	if c.debug {
		diagnostics.Source(c.Dumps, c.source)
		toks, lexErr := c.lexAll()
		diagnostics.Tokens(c.Dumps, toks)
		if lexErr != nil {
			return "", lexErr
		}
	}

	c.log.Debug("phase: parse")
	prog, err := parser.ParseProgram(lexer.New(c.source))
	if err != nil {
		return "", err
	}
	if c.debug {
		diagnostics.AST(c.Dumps, prog)
	}

	c.log.Debug("phase: semantic analysis")
	analyzer := semantic.New()
	if err := analyzer.Analyze(prog); err != nil {
		return "", err
	}
	if c.debug {
		diagnostics.Symbols(c.Dumps, analyzer.Table())
	}

	c.log.Debug("phase: ir generation")
	irProg := irgen.Generate(prog)
	if c.debug {
		diagnostics.IR(c.Dumps, "pre-optimization", irProg)
	}

	c.log.WithField("level", c.optLevel).Debug("phase: optimization")
	flags := optimizer.FlagsForLevel(c.optLevel)
	if err := optimizer.Optimize(irProg, flags); err != nil {
		return "", err
	}
	if c.debug {
		diagnostics.IR(c.Dumps, "post-optimization", irProg)
	}

	c.log.Debug("phase: emit")
	asm, err := emitter.Emit(irProg)
	if err != nil {
		return "", err
	}
	if c.debug {
		diagnostics.Assembly(c.Dumps, asm)
	}

	return asm, nil
}

// lexAll runs a throwaway lexer over the source purely to produce the
// diagnostic token dump; the parser keeps its own lexer instance and
// never sees these tokens.
func (c *Compiler) lexAll() ([]token.Token, error) {
	l := lexer.New(c.source)
	var toks []token.Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return toks, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	return toks, nil
}
