package lexer

import "fmt"

// TokenType classifies one command-line argument.
type TokenType int

const (
	EOF            TokenType = iota
	HANDLE_BINDING           // A=in.pdf
	INPUT                    // in.pdf, before the operator
	OPERATOR                 // cat, burst, fill_form, ...
	RANGE_ATOM               // 1-3, Aodd, r1east, 2-end~4
	KEYWORD                  // input_pw, owner_pw, allow, flatten, after, ...
	OUTPUT                   // output <path>, consumes the path
	WORD                     // anything else: passwords, data files, permission names
)

var tokenNames = map[TokenType]string{
	EOF:            "EOF",
	HANDLE_BINDING: "HANDLE_BINDING",
	INPUT:          "INPUT",
	OPERATOR:       "OPERATOR",
	RANGE_ATOM:     "RANGE_ATOM",
	KEYWORD:        "KEYWORD",
	OUTPUT:         "OUTPUT",
	WORD:           "WORD",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one classified argument.
type Token struct {
	Type     TokenType
	Value    string // the raw argument
	Label    string // HANDLE_BINDING: text before '='
	Path     string // HANDLE_BINDING: text after '='; OUTPUT: the target
	Position int    // 0-based index into the argument list
	Missing  bool   // OUTPUT with no following argument
}

func (t Token) String() string {
	switch t.Type {
	case HANDLE_BINDING:
		return fmt.Sprintf("%s(%s, %s)", t.Type, t.Label, t.Path)
	case OUTPUT:
		return fmt.Sprintf("%s(%s)", t.Type, t.Path)
	case EOF:
		return "EOF"
	default:
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	}
}

// Keywords recognised anywhere. Operator names live in core/plan.
var keywords = map[string]bool{
	"input_pw": true,

	"after":    true,
	"before":   true,
	"to_page":  true,
	"relation": true,

	"owner_pw":         true,
	"user_pw":          true,
	"allow":            true,
	"encrypt_40bit":    true,
	"encrypt_128bit":   true,
	"encrypt_aes128":   true,
	"encrypt_aes256":   true,
	"flatten":          true,
	"need_appearances": true,
	"drop_xfa":         true,
	"drop_info":        true,
	"keep_first_id":    true,
	"keep_final_id":    true,
	"compress":         true,
	"uncompress":       true,
	"linearize":        true,
	"verbose":          true,
	"dont_ask":         true,
	"do_ask":           true,
}

// IsKeyword reports whether word is a reserved keyword.
func IsKeyword(word string) bool {
	return keywords[word]
}

// takesValue lists keywords whose next argument is always a WORD.
var takesValue = map[string]bool{
	"owner_pw": true,
	"user_pw":  true,
	"relation": true,
}
