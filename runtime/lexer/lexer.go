// Package lexer classifies the raw operator argument list into tokens.
//
// Classification is lexical: it looks at the shape of each argument and at
// the coarse section it appears in (inputs, operands, options), never at
// page counts or files. Only a range-shaped argument that fails to scan is an
// error.
package lexer

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
)

// TelemetryMode controls telemetry collection (production-safe)
type TelemetryMode int

const (
	TelemetryOff    TelemetryMode = iota // Zero overhead (default)
	TelemetryBasic                       // Token counts only
	TelemetryTiming                      // Token counts + elapsed time
)

// DebugLevel controls debug tracing (development only)
type DebugLevel int

const (
	DebugOff      DebugLevel = iota // No debug info (default)
	DebugPaths                      // Section transitions
	DebugDetailed                   // Every token
)

// LexerOpt represents a lexer configuration option
type LexerOpt func(*LexerConfig)

// LexerConfig holds lexer configuration
type LexerConfig struct {
	telemetry TelemetryMode
	debug     DebugLevel
	logger    *slog.Logger
}

// WithTelemetryBasic enables token counts.
func WithTelemetryBasic() LexerOpt {
	return func(c *LexerConfig) { c.telemetry = TelemetryBasic }
}

// WithTelemetryTiming enables token counts and timing.
func WithTelemetryTiming() LexerOpt {
	return func(c *LexerConfig) { c.telemetry = TelemetryTiming }
}

// WithDebugPaths records section transitions.
func WithDebugPaths() LexerOpt {
	return func(c *LexerConfig) { c.debug = DebugPaths }
}

// WithDebugDetailed records every token.
func WithDebugDetailed() LexerOpt {
	return func(c *LexerConfig) { c.debug = DebugDetailed }
}

// WithLogger mirrors debug events to logger at debug level.
func WithLogger(logger *slog.Logger) LexerOpt {
	return func(c *LexerConfig) { c.logger = logger }
}

// DebugEvent holds debug tracing information (development only)
type DebugEvent struct {
	Timestamp time.Time
	Event     string // "section", "token"
	Position  int    // argument index
	Context   string
}

// Telemetry holds lexer metrics.
type Telemetry struct {
	TokenCount  int
	TypeCounts  map[TokenType]int
	LexDuration time.Duration
}

// Result is the output of Lex.
type Result struct {
	Tokens      []Token // always ends with EOF
	Telemetry   *Telemetry
	DebugEvents []DebugEvent
}

type section int

const (
	sectionInputs section = iota
	sectionOperands
	sectionOptions
)

var sectionNames = []string{"inputs", "operands", "options"}

type lexer struct {
	args    []string
	pos     int
	section section
	ranges  bool // operands of the current operator are page ranges
	config  LexerConfig
	tokens  []Token
	events  []DebugEvent
}

// Lex tokenizes args. The only failure is a SyntaxError for a malformed
// range-shaped argument or a malformed LABEL=path binding.
func Lex(args []string, opts ...LexerOpt) (*Result, error) {
	var cfg LexerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	start := time.Now()
	l := &lexer{args: args, config: cfg}
	if err := l.run(); err != nil {
		return nil, err
	}

	res := &Result{Tokens: l.tokens, DebugEvents: l.events}
	if cfg.telemetry >= TelemetryBasic {
		res.Telemetry = &Telemetry{TokenCount: len(l.tokens) - 1, TypeCounts: map[TokenType]int{}}
		for _, t := range l.tokens[:len(l.tokens)-1] {
			res.Telemetry.TypeCounts[t.Type]++
		}
		if cfg.telemetry >= TelemetryTiming {
			res.Telemetry.LexDuration = time.Since(start)
		}
	}
	return res, nil
}

// Tokenize is Lex without observability.
func Tokenize(args []string) ([]Token, error) {
	res, err := Lex(args)
	if err != nil {
		return nil, err
	}
	return res.Tokens, nil
}

func (l *lexer) run() error {
	for l.pos < len(l.args) {
		prev := l.pos
		if err := l.next(); err != nil {
			return err
		}
		if l.pos <= prev {
			panic(fmt.Sprintf("lexer did not advance at argument %d", prev))
		}
	}
	l.tokens = append(l.tokens, Token{Type: EOF, Position: len(l.args)})
	return nil
}

func (l *lexer) emit(t Token) {
	l.tokens = append(l.tokens, t)
	if l.config.debug >= DebugDetailed {
		l.record("token", t.Position, t.String())
	}
}

func (l *lexer) enter(s section) {
	if l.section == s {
		return
	}
	l.section = s
	if l.config.debug >= DebugPaths {
		l.record("section", l.pos, sectionNames[s])
	}
}

func (l *lexer) record(event string, pos int, context string) {
	l.events = append(l.events, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		Position:  pos,
		Context:   context,
	})
	if l.config.logger != nil {
		l.config.logger.Debug("lexer", "event", event, "arg", pos, "context", context)
	}
}

func (l *lexer) next() error {
	arg := l.args[l.pos]
	pos := l.pos
	l.pos++

	if arg == "output" {
		t := Token{Type: OUTPUT, Value: arg, Position: pos}
		if l.pos < len(l.args) {
			t.Path = l.args[l.pos]
			l.pos++
		} else {
			t.Missing = true
		}
		l.emit(t)
		l.enter(sectionOptions)
		return nil
	}

	if spec, ok := plan.LookupOperator(arg); ok {
		l.emit(Token{Type: OPERATOR, Value: arg, Position: pos})
		if l.section == sectionInputs {
			l.ranges = spec.Shape == plan.ShapeRanges || spec.Shape == plan.ShapeMove
			l.enter(sectionOperands)
		}
		return nil
	}

	if IsKeyword(arg) {
		l.emit(Token{Type: KEYWORD, Value: arg, Position: pos})
		if takesValue[arg] && l.pos < len(l.args) {
			l.emit(Token{Type: WORD, Value: l.args[l.pos], Position: l.pos})
			l.pos++
		}
		return nil
	}

	if l.section != sectionOptions {
		if label, path, ok := splitBinding(arg); ok {
			if label == "" || path == "" {
				return errors.Syntax("malformed handle binding, expected LABEL=path").At(pos, arg)
			}
			l.emit(Token{Type: HANDLE_BINDING, Value: arg, Label: label, Path: path, Position: pos})
			return nil
		}
	}

	switch l.section {
	case sectionInputs:
		l.emit(Token{Type: INPUT, Value: arg, Position: pos})
	case sectionOperands:
		if !l.ranges || arg == plan.Stdin {
			l.emit(Token{Type: WORD, Value: arg, Position: pos})
		} else if _, err := ScanRange(arg); err == nil {
			l.emit(Token{Type: RANGE_ATOM, Value: arg, Position: pos})
		} else if looksLikeRange(arg) {
			return errors.Syntax("malformed page range: %v", err).At(pos, arg)
		} else {
			l.emit(Token{Type: WORD, Value: arg, Position: pos})
		}
	default:
		l.emit(Token{Type: WORD, Value: arg, Position: pos})
	}
	return nil
}

// splitBinding recognises LABEL=path where LABEL is uppercase letters.
// Arguments whose text before '=' is not uppercase letters are not
// bindings (a file may contain '=' in its name). "=x" and "A=" are returned
// with ok so the caller can reject them.
func splitBinding(arg string) (label, path string, ok bool) {
	i := strings.IndexByte(arg, '=')
	if i < 0 {
		return "", "", false
	}
	label, path = arg[:i], arg[i+1:]
	for j := 0; j < len(label); j++ {
		if label[j] < 'A' || label[j] > 'Z' {
			return "", "", false
		}
	}
	return label, path, true
}
