// Package plan holds the Operation Plan produced by the parser and the
// resolved page references produced by the range resolver.
//
// A Plan is pure data: it never touches a document. Everything that needs a
// page count lives in runtime/resolver.
package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Handle labels one input document for one invocation.
type Handle string

// Stdin is the path used for "read from standard input" and "write to
// standard output".
const Stdin = "-"

// Binding ties a handle to an input path.
type Binding struct {
	Handle   Handle `cbor:"1,keyasint"`
	Path     string `cbor:"2,keyasint"`
	Implicit bool   `cbor:"3,keyasint"` // no LABEL= given, addressed by position
	Password string `cbor:"-"`          // from input_pw, may be "PROMPT"
	Position int    `cbor:"5,keyasint"` // 0-based argument index
}

// Operator is the closed set of operations.
type Operator string

const (
	OpCat                Operator = "cat"
	OpShuffle            Operator = "shuffle"
	OpRotate             Operator = "rotate"
	OpBurst              Operator = "burst"
	OpSplit              Operator = "split"
	OpMove               Operator = "move"
	OpFillForm           Operator = "fill_form"
	OpGenerateFDF        Operator = "generate_fdf"
	OpDumpData           Operator = "dump_data"
	OpDumpDataUTF8       Operator = "dump_data_utf8"
	OpDumpDataFields     Operator = "dump_data_fields"
	OpDumpDataFieldsUTF8 Operator = "dump_data_fields_utf8"
	OpDumpDataAnnots     Operator = "dump_data_annots"
	OpUpdateInfo         Operator = "update_info"
	OpUpdateInfoUTF8     Operator = "update_info_utf8"
	OpAttachFiles        Operator = "attach_files"
	OpUnpackFiles        Operator = "unpack_files"
	OpBackground         Operator = "background"
	OpMultiBackground    Operator = "multibackground"
	OpStamp              Operator = "stamp"
	OpMultiStamp         Operator = "multistamp"
	OpEncrypt            Operator = "encrypt"
	OpDecrypt            Operator = "decrypt"
	OpSpin               Operator = "spin"
	OpDumpCatalog        Operator = "dump_catalog"
	OpUpdateCatalog      Operator = "update_catalog"
)

// Shape is the operand shape an operator declares.
type Shape int

const (
	ShapeNone        Shape = iota // no operands
	ShapeRanges                   // zero or more range expressions
	ShapeDataFile                 // exactly one data file path ("-" allowed)
	ShapeAttachments              // one or more files plus to_page/relation
	ShapeMove                     // range after|before page
	ShapeSpin                     // one or more range:angle specs
	ShapeFormat                   // an optional "json" word
)

// OutputKind says what an operator writes.
type OutputKind int

const (
	WritesDocument  OutputKind = iota // one PDF, output required
	WritesPattern                     // several PDFs named by a printf pattern
	WritesData                        // text or FDF, stdout when output omitted
	WritesDirectory                   // files into a directory, cwd when omitted
)

// OperatorSpec is the declared arity of an operator.
type OperatorSpec struct {
	Name   Operator
	Shape  Shape
	Output OutputKind
}

var operators = map[Operator]OperatorSpec{
	OpCat:                {OpCat, ShapeRanges, WritesDocument},
	OpShuffle:            {OpShuffle, ShapeRanges, WritesDocument},
	OpRotate:             {OpRotate, ShapeRanges, WritesDocument},
	OpBurst:              {OpBurst, ShapeNone, WritesPattern},
	OpSplit:              {OpSplit, ShapeRanges, WritesPattern},
	OpMove:               {OpMove, ShapeMove, WritesDocument},
	OpFillForm:           {OpFillForm, ShapeDataFile, WritesDocument},
	OpGenerateFDF:        {OpGenerateFDF, ShapeNone, WritesData},
	OpDumpData:           {OpDumpData, ShapeNone, WritesData},
	OpDumpDataUTF8:       {OpDumpDataUTF8, ShapeNone, WritesData},
	OpDumpDataFields:     {OpDumpDataFields, ShapeNone, WritesData},
	OpDumpDataFieldsUTF8: {OpDumpDataFieldsUTF8, ShapeNone, WritesData},
	OpDumpDataAnnots:     {OpDumpDataAnnots, ShapeNone, WritesData},
	OpUpdateInfo:         {OpUpdateInfo, ShapeDataFile, WritesDocument},
	OpUpdateInfoUTF8:     {OpUpdateInfoUTF8, ShapeDataFile, WritesDocument},
	OpAttachFiles:        {OpAttachFiles, ShapeAttachments, WritesDocument},
	OpUnpackFiles:        {OpUnpackFiles, ShapeNone, WritesDirectory},
	OpBackground:         {OpBackground, ShapeDataFile, WritesDocument},
	OpMultiBackground:    {OpMultiBackground, ShapeDataFile, WritesDocument},
	OpStamp:              {OpStamp, ShapeDataFile, WritesDocument},
	OpMultiStamp:         {OpMultiStamp, ShapeDataFile, WritesDocument},
	OpEncrypt:            {OpEncrypt, ShapeNone, WritesDocument},
	OpDecrypt:            {OpDecrypt, ShapeNone, WritesDocument},
	OpSpin:               {OpSpin, ShapeSpin, WritesDocument},
	OpDumpCatalog:        {OpDumpCatalog, ShapeFormat, WritesData},
	OpUpdateCatalog:      {OpUpdateCatalog, ShapeDataFile, WritesDocument},
}

// LookupOperator returns the OperatorSpec of a reserved operator name.
func LookupOperator(name string) (OperatorSpec, bool) {
	spec, ok := operators[Operator(name)]
	return spec, ok
}

// OperatorNames lists every operator, for suggestions and help.
func OperatorNames() []string {
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// AcceptsManyInputs reports whether the operator reads pages from more than
// one input document.
func (s OperatorSpec) AcceptsManyInputs() bool {
	switch s.Name {
	case OpCat, OpShuffle, OpSplit:
		return true
	}
	return false
}

// Spec returns the declared arity of op. It panics for unknown operators,
// which the parser never produces.
func (op Operator) Spec() OperatorSpec {
	spec, ok := operators[op]
	if !ok {
		panic(fmt.Sprintf("unknown operator %q", string(op)))
	}
	return spec
}

// PageKind is how a page index is written.
type PageKind int

const (
	PageOmitted  PageKind = iota
	PageAbsolute          // 7
	PageEnd               // end
	PageFromEnd           // r2 means the second-to-last page
)

// PageRef is one end of a range atom.
type PageRef struct {
	Kind PageKind `cbor:"1,keyasint"`
	N    int      `cbor:"2,keyasint"`
}

func (r PageRef) String() string {
	switch r.Kind {
	case PageAbsolute:
		return fmt.Sprintf("%d", r.N)
	case PageEnd:
		return "end"
	case PageFromEnd:
		return fmt.Sprintf("r%d", r.N)
	default:
		return ""
	}
}

// Qualifier filters a range by page parity.
type Qualifier int

const (
	QualNone Qualifier = iota
	QualOdd
	QualEven
)

func (q Qualifier) String() string {
	switch q {
	case QualOdd:
		return "odd"
	case QualEven:
		return "even"
	default:
		return ""
	}
}

// Rotation is a compass modifier on a range atom.
type Rotation int

const (
	RotNone Rotation = iota
	RotNorth
	RotEast
	RotSouth
	RotWest
	RotLeft
	RotRight
	RotDown
)

var rotationNames = []string{"", "north", "east", "south", "west", "left", "right", "down"}

func (r Rotation) String() string {
	if int(r) < len(rotationNames) {
		return rotationNames[r]
	}
	return fmt.Sprintf("Rotation(%d)", int(r))
}

// ParseRotation maps a compass word to a Rotation.
func ParseRotation(word string) (Rotation, bool) {
	for i, name := range rotationNames {
		if i > 0 && name == word {
			return Rotation(i), true
		}
	}
	return RotNone, false
}

// RangeAtom is a single [handle][start[-end]][qualifier][rotation] unit,
// optionally followed by ~exclusions.
type RangeAtom struct {
	Handle    Handle      `cbor:"1,keyasint"`
	Start     PageRef     `cbor:"2,keyasint"`
	End       PageRef     `cbor:"3,keyasint"`
	Qualifier Qualifier   `cbor:"4,keyasint"`
	Rotation  Rotation    `cbor:"5,keyasint"`
	Excludes  []RangeAtom `cbor:"6,keyasint,omitempty"`
	Raw       string      `cbor:"-"`
	Position  int         `cbor:"-"`
}

func (a RangeAtom) String() string {
	var b strings.Builder
	b.WriteString(string(a.Handle))
	b.WriteString(a.Start.String())
	if a.End.Kind != PageOmitted {
		b.WriteString("-")
		b.WriteString(a.End.String())
	}
	b.WriteString(a.Qualifier.String())
	b.WriteString(a.Rotation.String())
	for _, ex := range a.Excludes {
		b.WriteString("~")
		b.WriteString(ex.String())
	}
	return b.String()
}

// RangeExpr is one operand argument: atoms joined by commas.
type RangeExpr struct {
	Atoms []RangeAtom `cbor:"1,keyasint"`
}

func (e RangeExpr) String() string {
	parts := make([]string, len(e.Atoms))
	for i, a := range e.Atoms {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

// Placement is the side of the target page in a move.
type Placement int

const (
	PlaceAfter Placement = iota
	PlaceBefore
)

// MoveSpec is the operand of move.
type MoveSpec struct {
	Source RangeExpr `cbor:"1,keyasint"`
	Where  Placement `cbor:"2,keyasint"`
	Target RangeAtom `cbor:"3,keyasint"`
}

// SpinSpec is one operand of spin: the pages and the angle in degrees,
// counter-clockwise.
type SpinSpec struct {
	Range RangeExpr `cbor:"1,keyasint"`
	Angle float64   `cbor:"2,keyasint"`
}

func (s SpinSpec) String() string {
	return fmt.Sprintf("%s:%s", s.Range, strconv.FormatFloat(s.Angle, 'f', -1, 64))
}

// AttachSpec is the operand of attach_files.
type AttachSpec struct {
	Files    []string `cbor:"1,keyasint"`
	Page     int      `cbor:"2,keyasint,omitempty"` // 0 attaches to the document
	Relation string   `cbor:"3,keyasint,omitempty"`
}

// Output is the terminal operand.
type Output struct {
	Path     string `cbor:"1,keyasint"`
	Set      bool   `cbor:"2,keyasint"`
	Position int    `cbor:"-"`
}

// IsStdout reports whether the output goes to standard output.
func (o Output) IsStdout() bool {
	return o.Set && o.Path == Stdin
}

// Plan is one parsed invocation.
type Plan struct {
	Inputs   []Binding     `cbor:"1,keyasint"`
	Operator Operator      `cbor:"2,keyasint"`
	Implicit bool          `cbor:"3,keyasint"` // no operator given, behaves as cat
	Ranges   []RangeExpr   `cbor:"4,keyasint,omitempty"`
	DataFile string        `cbor:"5,keyasint,omitempty"`
	Attach   *AttachSpec   `cbor:"6,keyasint,omitempty"`
	Move     *MoveSpec     `cbor:"7,keyasint,omitempty"`
	Output   Output        `cbor:"8,keyasint"`
	Options  OutputOptions `cbor:"9,keyasint"`
	Spins    []SpinSpec    `cbor:"10,keyasint,omitempty"`
	JSON     bool          `cbor:"11,keyasint,omitempty"` // dump_catalog json
}

// Binding returns the binding for h.
func (p *Plan) Binding(h Handle) (Binding, bool) {
	for _, b := range p.Inputs {
		if b.Handle == h {
			return b, true
		}
	}
	return Binding{}, false
}

// DefaultHandle is the handle that handle-less atoms refer to: the first
// input.
func (p *Plan) DefaultHandle() Handle {
	if len(p.Inputs) == 0 {
		return ""
	}
	return p.Inputs[0].Handle
}

// ResolvedPageRef is a concrete page ready for execution. Only the range
// resolver constructs these.
type ResolvedPageRef struct {
	Handle   Handle
	Page     int // 1-based
	Rotation int // final rotation in degrees, one of 0, 90, 180, 270
}

func (r ResolvedPageRef) String() string {
	if r.Rotation != 0 {
		return fmt.Sprintf("%s%d@%d", r.Handle, r.Page, r.Rotation)
	}
	return fmt.Sprintf("%s%d", r.Handle, r.Page)
}
