// Package parser turns the classified argument list into an Operation Plan.
//
// The grammar is positional:
//
//	invocation := inputs [input_pw passwords] [operator operands] [output target options]
//
// Everything that can be decided without opening a document is decided
// here: operand shapes, option conflicts and the presence of an output
// target. Page counts are the range resolver's business.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/invariant"
	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/runtime/lexer"
)

// Result is the output of Parse.
type Result struct {
	Plan        *plan.Plan
	Tokens      []lexer.Token
	Telemetry   *ParseTelemetry
	DebugEvents []DebugEvent
}

// Parse lexes and parses args into a plan.
func Parse(args []string, opts ...ParserOpt) (*Result, error) {
	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}

	var telemetry *ParseTelemetry
	var startTotal time.Time
	if config.telemetry >= TelemetryBasic {
		telemetry = &ParseTelemetry{}
		if config.telemetry >= TelemetryTiming {
			startTotal = time.Now()
		}
	}

	var lexOpts []lexer.LexerOpt
	if config.logger != nil {
		lexOpts = append(lexOpts, lexer.WithLogger(config.logger))
	}
	if config.debug >= DebugDetailed {
		lexOpts = append(lexOpts, lexer.WithDebugDetailed())
	}

	startLex := time.Now()
	lexed, err := lexer.Lex(args, lexOpts...)
	if err != nil {
		return nil, err
	}
	if telemetry != nil {
		telemetry.TokenCount = len(lexed.Tokens)
		if config.telemetry >= TelemetryTiming {
			telemetry.LexTime = time.Since(startLex)
		}
	}

	p := &parser{
		tokens: lexed.Tokens,
		config: config,
		plan:   &plan.Plan{},
	}

	startParse := time.Now()
	if err := p.invocation(); err != nil {
		return nil, err
	}

	if telemetry != nil {
		telemetry.InputCount = len(p.plan.Inputs)
		telemetry.RangeCount = p.rangeCount
		telemetry.OptionsCount = p.optionCount
		if config.telemetry >= TelemetryTiming {
			telemetry.ParseTime = time.Since(startParse)
			telemetry.TotalTime = time.Since(startTotal)
		}
	}

	return &Result{
		Plan:        p.plan,
		Tokens:      lexed.Tokens,
		Telemetry:   telemetry,
		DebugEvents: p.debugEvents,
	}, nil
}

// ParseArgs is Parse without observability.
func ParseArgs(args []string) (*plan.Plan, error) {
	res, err := Parse(args)
	if err != nil {
		return nil, err
	}
	return res.Plan, nil
}

type parser struct {
	tokens []lexer.Token
	pos    int
	config *ParserConfig
	plan   *plan.Plan

	rangeCount  int
	optionCount int
	debugEvents []DebugEvent
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() {
	if p.config.debug >= DebugDetailed {
		p.recordDebugEvent("token", p.current().String())
	}
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *parser) at(types ...lexer.TokenType) bool {
	cur := p.current().Type
	for _, t := range types {
		if cur == t {
			return true
		}
	}
	return false
}

func (p *parser) recordDebugEvent(event, context string) {
	p.debugEvents = append(p.debugEvents, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		TokenPos:  p.pos,
		Context:   context,
	})
	if p.config.logger != nil {
		p.config.logger.Debug("parser", "event", event, "token", p.pos, "context", context)
	}
}

func (p *parser) trace(event string) {
	if p.config.debug >= DebugPaths {
		p.recordDebugEvent(event, fmt.Sprintf("pos=%d", p.pos))
	}
}

func (p *parser) invocation() error {
	invariant.Precondition(len(p.tokens) > 0, "token stream must end with EOF")

	if err := p.inputs(); err != nil {
		return err
	}
	if err := p.operation(); err != nil {
		return err
	}
	if err := p.output(); err != nil {
		return err
	}
	if !p.at(lexer.EOF) {
		return expected("end of arguments", p.current())
	}
	return p.validate()
}

// inputs parses bindings and unlabelled inputs, then an optional input_pw
// clause.
func (p *parser) inputs() error {
	p.trace("enter_inputs")
	defer p.trace("exit_inputs")

	for {
		tok := p.current()
		switch tok.Type {
		case lexer.HANDLE_BINDING:
			if err := p.bind(plan.Handle(tok.Label), tok.Path, false, tok); err != nil {
				return err
			}
		case lexer.INPUT:
			h := plan.Handle(fmt.Sprintf("_%d", len(p.plan.Inputs)+1))
			if err := p.bind(h, tok.Value, true, tok); err != nil {
				return err
			}
		case lexer.KEYWORD:
			if tok.Value != "input_pw" {
				return errors.Grammar("%s is not valid before the operator", tok.Value).At(tok.Position, tok.Value)
			}
			if len(p.plan.Inputs) == 0 {
				return errors.Grammar("input_pw must follow the input documents").At(tok.Position, tok.Value)
			}
			p.advance()
			return p.passwords()
		default:
			if len(p.plan.Inputs) == 0 {
				return expected("an input document", tok).
					WithHint("Start with the input files, e.g. 'A=in.pdf cat output out.pdf'")
			}
			return nil
		}
		p.advance()
	}
}

func (p *parser) bind(h plan.Handle, path string, implicit bool, tok lexer.Token) error {
	if _, exists := p.plan.Binding(h); exists {
		return errors.Grammar("handle %s is already bound", h).At(tok.Position, tok.Value).
			WithHint("Each handle can be bound to one input only")
	}
	p.plan.Inputs = append(p.plan.Inputs, plan.Binding{
		Handle:   h,
		Path:     path,
		Implicit: implicit,
		Position: tok.Position,
	})
	return nil
}

// passwords parses input_pw values: positional in input order, or
// LABEL=password for a named handle.
func (p *parser) passwords() error {
	next := 0
	count := 0
	for {
		tok := p.current()
		switch tok.Type {
		case lexer.INPUT:
			if next >= len(p.plan.Inputs) {
				return errors.Grammar("more passwords than input documents").At(tok.Position, tok.Value)
			}
			p.plan.Inputs[next].Password = tok.Value
			next++
		case lexer.HANDLE_BINDING:
			i := p.bindingIndex(plan.Handle(tok.Label))
			if i < 0 {
				return errors.Range("input_pw names unbound handle %s", tok.Label).At(tok.Position, tok.Label)
			}
			p.plan.Inputs[i].Password = tok.Path
		default:
			if count == 0 {
				return expected("a password after input_pw", tok)
			}
			return nil
		}
		count++
		p.advance()
	}
}

func (p *parser) bindingIndex(h plan.Handle) int {
	for i, b := range p.plan.Inputs {
		if b.Handle == h {
			return i
		}
	}
	return -1
}

func (p *parser) operation() error {
	tok := p.current()
	switch tok.Type {
	case lexer.OPERATOR:
		spec, ok := plan.LookupOperator(tok.Value)
		invariant.Invariant(ok, "lexer produced unknown operator %q", tok.Value)
		p.plan.Operator = spec.Name
		p.advance()
		return p.operands(spec)
	case lexer.OUTPUT, lexer.EOF:
		p.plan.Operator = plan.OpCat
		p.plan.Implicit = true
		return p.checkOperatorTypos()
	default:
		return expected("an operator or output", tok)
	}
}

// checkOperatorTypos rejects an invocation without an operator when one of
// the unlabelled inputs is a near miss of an operator name.
func (p *parser) checkOperatorTypos() error {
	for _, b := range p.plan.Inputs {
		if !b.Implicit {
			continue
		}
		if s := suggestOperator(b.Path); s != "" {
			e := errors.Grammar("unknown operator %q", b.Path).At(b.Position, b.Path)
			return withSuggestion(e, s)
		}
	}
	return nil
}

func (p *parser) operands(spec plan.OperatorSpec) error {
	p.trace("enter_operands")
	defer p.trace("exit_operands")

	var err error
	switch spec.Shape {
	case plan.ShapeNone:
	case plan.ShapeRanges:
		for p.at(lexer.RANGE_ATOM) {
			var expr plan.RangeExpr
			if expr, err = p.rangeExpr(p.current()); err != nil {
				return err
			}
			p.plan.Ranges = append(p.plan.Ranges, expr)
			p.advance()
		}
	case plan.ShapeDataFile:
		tok := p.current()
		if tok.Type != lexer.WORD {
			return expected(fmt.Sprintf("a data file for %s", spec.Name), tok)
		}
		p.plan.DataFile = tok.Value
		p.advance()
	case plan.ShapeAttachments:
		err = p.attachments()
	case plan.ShapeMove:
		err = p.move()
	case plan.ShapeSpin:
		err = p.spins()
	case plan.ShapeFormat:
		if tok := p.current(); tok.Type == lexer.WORD && strings.EqualFold(tok.Value, "json") {
			p.plan.JSON = true
			p.advance()
		}
	}
	if err != nil {
		return err
	}

	tok := p.current()
	switch tok.Type {
	case lexer.OUTPUT, lexer.EOF:
		return nil
	case lexer.HANDLE_BINDING:
		return errors.Grammar("handle binding %s after the operator", tok.Label).At(tok.Position, tok.Value).
			WithHint("Bind all handles before '%s'", spec.Name)
	case lexer.OPERATOR:
		return errors.Grammar("only one operator is allowed, found %s after %s", tok.Value, spec.Name).
			At(tok.Position, tok.Value)
	}
	switch spec.Shape {
	case plan.ShapeNone:
		return errors.Grammar("%s takes no operands", spec.Name).At(tok.Position, tok.Value)
	case plan.ShapeDataFile:
		return errors.Grammar("%s takes exactly one data file", spec.Name).At(tok.Position, tok.Value)
	case plan.ShapeRanges:
		return expected("a page range or output", tok)
	case plan.ShapeFormat:
		return errors.Grammar("%s takes no operands other than json", spec.Name).At(tok.Position, tok.Value)
	default:
		return expected("output", tok)
	}
}

func (p *parser) attachments() error {
	spec := &plan.AttachSpec{}
	for p.at(lexer.WORD) {
		spec.Files = append(spec.Files, p.current().Value)
		p.advance()
	}
	if len(spec.Files) == 0 {
		return expected("one or more files to attach", p.current())
	}

	for p.at(lexer.KEYWORD) {
		kw := p.current()
		switch kw.Value {
		case "to_page":
			p.advance()
			tok := p.current()
			if tok.Type != lexer.WORD {
				return expected("a page number after to_page", tok)
			}
			n, err := strconv.Atoi(tok.Value)
			if err != nil {
				return errors.Syntax("to_page expects a page number").At(tok.Position, tok.Value)
			}
			if n < 1 {
				return errors.Range("page %d does not exist", n).At(tok.Position, tok.Value)
			}
			spec.Page = n
		case "relation":
			p.advance()
			tok := p.current()
			if tok.Type != lexer.WORD {
				return expected("a relationship after relation", tok)
			}
			if !validRelation(tok.Value) {
				e := errors.Grammar("unknown attachment relationship %q", tok.Value).At(tok.Position, tok.Value)
				return withSuggestion(e, findClosestMatch(tok.Value, attachmentRelations))
			}
			spec.Relation = tok.Value
		default:
			p.plan.Attach = spec
			return nil
		}
		p.advance()
	}
	p.plan.Attach = spec
	return nil
}

// attachmentRelations are the /AFRelationship names of ISO 32000-2.
var attachmentRelations = []string{"Source", "Data", "Alternative", "Supplement", "EncryptedPayload", "FormData", "Schema", "Unspecified"}

func validRelation(name string) bool {
	for _, r := range attachmentRelations {
		if r == name {
			return true
		}
	}
	return false
}

func (p *parser) move() error {
	spec := &plan.MoveSpec{}
	for p.at(lexer.RANGE_ATOM) {
		expr, err := p.rangeExpr(p.current())
		if err != nil {
			return err
		}
		spec.Source.Atoms = append(spec.Source.Atoms, expr.Atoms...)
		p.advance()
	}
	if len(spec.Source.Atoms) == 0 {
		return expected("pages to move", p.current())
	}

	kw := p.current()
	if kw.Type != lexer.KEYWORD || (kw.Value != "after" && kw.Value != "before") {
		return expected("'after' or 'before'", kw)
	}
	if kw.Value == "before" {
		spec.Where = plan.PlaceBefore
	}
	p.advance()

	tok := p.current()
	if tok.Type != lexer.RANGE_ATOM {
		return expected("a target page", tok)
	}
	target, err := p.rangeExpr(tok)
	if err != nil {
		return err
	}
	if len(target.Atoms) != 1 || !singlePage(target.Atoms[0]) {
		return errors.Grammar("move target must be a single page").At(tok.Position, tok.Value)
	}
	spec.Target = target.Atoms[0]
	p.advance()

	p.plan.Move = spec
	return nil
}

// spins parses the range:angle operands of spin.
func (p *parser) spins() error {
	for p.at(lexer.WORD) {
		spec, err := p.spinSpec(p.current())
		if err != nil {
			return err
		}
		p.plan.Spins = append(p.plan.Spins, spec)
		p.advance()
	}
	if len(p.plan.Spins) == 0 {
		return expected("a range:angle operand for spin", p.current()).
			WithHint("e.g. 'spin 1-3:45' turns pages 1 to 3 by 45 degrees counter-clockwise")
	}
	return nil
}

// spinSpec splits a spin operand at its last colon. The range may be
// wrapped in brackets, and an empty range means every page.
func (p *parser) spinSpec(tok lexer.Token) (plan.SpinSpec, error) {
	i := strings.LastIndex(tok.Value, ":")
	if i < 0 {
		return plan.SpinSpec{}, errors.Syntax("spin operand %q has no angle", tok.Value).At(tok.Position, tok.Value).
			WithHint("Write pages and angle as range:degrees, e.g. '%s:90'", tok.Value)
	}
	angle, err := strconv.ParseFloat(tok.Value[i+1:], 64)
	if err != nil || math.IsNaN(angle) || math.IsInf(angle, 0) {
		return plan.SpinSpec{}, errors.Syntax("invalid spin angle %q", tok.Value[i+1:]).At(tok.Position, tok.Value)
	}

	text := tok.Value[:i]
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		text = text[1 : len(text)-1]
	}
	spec := plan.SpinSpec{Angle: angle}
	if text == "" {
		spec.Range.Atoms = []plan.RangeAtom{{Raw: tok.Value, Position: tok.Position}}
		p.rangeCount++
		return spec, nil
	}
	if spec.Range, err = p.rangeExpr(lexer.Token{Type: lexer.RANGE_ATOM, Value: text, Position: tok.Position}); err != nil {
		return plan.SpinSpec{}, err
	}
	for _, a := range spec.Range.Atoms {
		if a.Rotation != plan.RotNone {
			return plan.SpinSpec{}, errors.Grammar("spin pages cannot carry a rotation").At(tok.Position, tok.Value).
				WithHint("Use rotate for quarter turns")
		}
	}
	return spec, nil
}

func singlePage(a plan.RangeAtom) bool {
	if a.Start.Kind == plan.PageOmitted || a.Qualifier != plan.QualNone || a.Rotation != plan.RotNone || len(a.Excludes) > 0 {
		return false
	}
	return a.End.Kind == plan.PageOmitted || a.End == a.Start
}

// rangeExpr converts a RANGE_ATOM token into plan atoms.
func (p *parser) rangeExpr(tok lexer.Token) (plan.RangeExpr, error) {
	texts, err := lexer.ScanRange(tok.Value)
	if err != nil {
		return plan.RangeExpr{}, errors.Syntax("malformed page range: %v", err).At(tok.Position, tok.Value)
	}
	var expr plan.RangeExpr
	for _, rt := range texts {
		atom, err := convertAtom(rt)
		if err != nil {
			return plan.RangeExpr{}, err.At(tok.Position, tok.Value)
		}
		atom.Raw = tok.Value
		atom.Position = tok.Position
		expr.Atoms = append(expr.Atoms, atom)
		p.rangeCount++
	}
	return expr, nil
}

func convertAtom(rt lexer.RangeText) (plan.RangeAtom, *errors.Error) {
	var atom plan.RangeAtom
	var err *errors.Error
	atom.Handle = plan.Handle(rt.Handle)
	if atom.Start, err = pageRef(rt.Start); err != nil {
		return atom, err
	}
	if atom.End, err = pageRef(rt.End); err != nil {
		return atom, err
	}
	switch rt.Qualifier {
	case "odd":
		atom.Qualifier = plan.QualOdd
	case "even":
		atom.Qualifier = plan.QualEven
	}
	if rt.Rotation != "" {
		rot, ok := plan.ParseRotation(rt.Rotation)
		invariant.Invariant(ok, "scanner accepted unknown rotation %q", rt.Rotation)
		atom.Rotation = rot
	}
	for _, ex := range rt.Excludes {
		exAtom, err := convertAtom(ex)
		if err != nil {
			return atom, err
		}
		atom.Excludes = append(atom.Excludes, exAtom)
	}
	return atom, nil
}

func pageRef(text string) (plan.PageRef, *errors.Error) {
	switch {
	case text == "":
		return plan.PageRef{}, nil
	case text == "end":
		return plan.PageRef{Kind: plan.PageEnd}, nil
	case strings.HasPrefix(text, "r"):
		n, err := strconv.Atoi(text[1:])
		if err != nil {
			return plan.PageRef{}, errors.Syntax("page number %q is out of range", text)
		}
		return plan.PageRef{Kind: plan.PageFromEnd, N: n}, nil
	default:
		n, err := strconv.Atoi(text)
		if err != nil {
			return plan.PageRef{}, errors.Syntax("page number %q is out of range", text)
		}
		return plan.PageRef{Kind: plan.PageAbsolute, N: n}, nil
	}
}

func (p *parser) output() error {
	p.trace("enter_output")
	defer p.trace("exit_output")

	tok := p.current()
	if tok.Type == lexer.EOF {
		return nil
	}
	if tok.Type != lexer.OUTPUT {
		return expected("output", tok)
	}
	if tok.Missing {
		return errors.Grammar("output requires a file name").At(tok.Position, tok.Value).
			WithHint("Use 'output -' to write to standard output")
	}
	p.plan.Output = plan.Output{Path: tok.Path, Set: true, Position: tok.Position}
	p.advance()

	for !p.at(lexer.EOF) {
		tok := p.current()
		switch tok.Type {
		case lexer.OUTPUT:
			return errors.Grammar("only one output is allowed").At(tok.Position, tok.Value)
		case lexer.OPERATOR:
			return errors.Grammar("operator %s after output", tok.Value).At(tok.Position, tok.Value).
				WithHint("The operator goes between the inputs and 'output'")
		case lexer.KEYWORD:
			if err := p.option(tok); err != nil {
				return err
			}
		default:
			e := errors.Grammar("unknown output option %q", tok.Value).At(tok.Position, tok.Value)
			return withSuggestion(e, findClosestMatch(tok.Value, outputKeywords))
		}
	}
	return nil
}

// option parses one output keyword and leaves the parser on the next
// unconsumed token.
func (p *parser) option(tok lexer.Token) error {
	o := &p.plan.Options
	p.optionCount++

	switch tok.Value {
	case "owner_pw", "user_pw":
		p.advance()
		val := p.current()
		if val.Type != lexer.WORD {
			return errors.Grammar("%s requires a password", tok.Value).At(tok.Position, tok.Value)
		}
		if tok.Value == "owner_pw" {
			o.OwnerPassword = val.Value
		} else {
			o.UserPassword = val.Value
		}
	case "encrypt_40bit", "encrypt_128bit", "encrypt_aes128", "encrypt_aes256":
		m, _ := plan.ParseEncryption(tok.Value)
		if o.Encryption != plan.EncryptNone && o.Encryption != m {
			return errors.Grammar("%s conflicts with %s", tok.Value, o.Encryption).At(tok.Position, tok.Value)
		}
		o.Encryption = m
	case "allow":
		p.advance()
		n := 0
		for p.at(lexer.WORD) {
			w := p.current()
			perm, ok := plan.ParsePermission(w.Value)
			if !ok {
				e := errors.Grammar("unknown permission %q", w.Value).At(w.Position, w.Value)
				return withSuggestion(e, findClosestMatch(w.Value, plan.PermissionNames()))
			}
			o.Permissions = append(o.Permissions, perm)
			p.advance()
			n++
		}
		if n == 0 {
			return errors.Grammar("allow requires at least one permission").At(tok.Position, tok.Value).
				WithHint("Permissions: %s", strings.Join(plan.PermissionNames(), ", "))
		}
		return nil
	case "flatten":
		o.Flatten = true
	case "need_appearances":
		o.NeedAppearances = true
	case "drop_xfa":
		o.DropXFA = true
	case "drop_info":
		o.DropInfo = true
	case "keep_first_id", "keep_final_id":
		policy := plan.IDKeepFirst
		if tok.Value == "keep_final_id" {
			policy = plan.IDKeepFinal
		}
		if o.KeepID != plan.IDNew && o.KeepID != policy {
			return errors.Grammar("keep_first_id and keep_final_id are exclusive").At(tok.Position, tok.Value)
		}
		o.KeepID = policy
	case "compress", "uncompress":
		c := plan.CompressOn
		if tok.Value == "uncompress" {
			c = plan.CompressOff
		}
		if o.Compression != plan.CompressDefault && o.Compression != c {
			return errors.Grammar("compress and uncompress are exclusive").At(tok.Position, tok.Value)
		}
		o.Compression = c
	case "linearize":
		o.Linearize = true
	case "verbose":
		o.Verbose = true
	case "dont_ask":
		o.Ask = plan.AskNever
	case "do_ask":
		o.Ask = plan.AskAlways
	default:
		return errors.Grammar("%s is not an output option", tok.Value).At(tok.Position, tok.Value)
	}
	p.advance()
	return nil
}

// validate checks the cross-cutting rules that need the whole plan.
func (p *parser) validate() error {
	pl := p.plan
	spec := pl.Operator.Spec()

	if pl.Implicit && !pl.Output.Set {
		return errors.Grammar("expected an operator or output after the inputs").
			WithHint("Try '%s cat output out.pdf'", pl.Inputs[0].Path)
	}

	if !spec.AcceptsManyInputs() && len(pl.Inputs) > 1 {
		extra := pl.Inputs[1]
		return errors.Grammar("%s takes exactly one input document, got %d", spec.Name, len(pl.Inputs)).
			At(extra.Position, extra.Path)
	}

	switch spec.Output {
	case plan.WritesDocument:
		if !pl.Output.Set {
			return errors.Grammar("%s requires an output target", spec.Name).
				WithHint("Add 'output out.pdf', or 'output -' for standard output")
		}
	case plan.WritesPattern, plan.WritesDirectory:
		if pl.Output.IsStdout() {
			return errors.Grammar("%s writes several files and cannot write to standard output", spec.Name).
				At(pl.Output.Position, "output")
		}
	case plan.WritesData:
		if pl.Options.Encrypted() {
			return errors.Grammar("%s writes data, encryption options do not apply", spec.Name).
				At(pl.Output.Position, "output")
		}
	}

	if err := pl.Options.Validate(); err != nil {
		return errors.Grammar("%v", err)
	}

	switch spec.Name {
	case plan.OpEncrypt:
		if !pl.Options.Encrypted() {
			return errors.Grammar("encrypt requires owner_pw, user_pw or an encrypt_ keyword")
		}
	case plan.OpDecrypt:
		if pl.Options.Encrypted() {
			return errors.Grammar("decrypt cannot take encryption options")
		}
	}

	if pl.DataFile == plan.Stdin {
		for _, b := range pl.Inputs {
			if b.Path == plan.Stdin {
				return errors.Grammar("standard input cannot supply both an input document and the data file").
					At(b.Position, b.Path)
			}
		}
	}
	return nil
}
