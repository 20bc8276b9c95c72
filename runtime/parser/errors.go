package parser

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/runtime/lexer"
)

// expected builds a GrammarError naming what the parser wanted and what it
// found at tok.
func expected(want string, tok lexer.Token) *errors.Error {
	if tok.Type == lexer.EOF {
		return errors.Grammar("expected %s, found end of arguments", want)
	}
	return errors.Grammar("expected %s, found %s", want, describe(tok)).At(tok.Position, tok.Value)
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.OPERATOR:
		return "operator " + tok.Value
	case lexer.KEYWORD:
		return "keyword " + tok.Value
	case lexer.OUTPUT:
		return "output"
	case lexer.HANDLE_BINDING:
		return "handle binding " + tok.Label
	case lexer.RANGE_ATOM:
		return "page range " + tok.Value
	default:
		return "'" + tok.Value + "'"
	}
}

// findClosestMatch finds the closest string match using fuzzy matching.
// Words shorter than three characters never match, so single-letter file
// names and handles are not mistaken for typos.
func findClosestMatch(target string, candidates []string) string {
	if len(target) < 3 || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		if ranks[0].Distance <= 3 {
			return ranks[0].Target
		}
	}

	best, bestDist := "", 3
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(lower, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// suggestOperator returns the operator an unknown word was probably meant
// to be. Words that look like paths are never suggested against.
func suggestOperator(word string) string {
	if strings.ContainsAny(word, "./\\") {
		return ""
	}
	return findClosestMatch(word, plan.OperatorNames())
}

var outputKeywords = []string{
	"owner_pw", "user_pw", "allow",
	"encrypt_40bit", "encrypt_128bit", "encrypt_aes128", "encrypt_aes256",
	"flatten", "need_appearances", "drop_xfa", "drop_info",
	"keep_first_id", "keep_final_id", "compress", "uncompress",
	"linearize", "verbose", "dont_ask", "do_ask",
}

func withSuggestion(e *errors.Error, suggestion string) *errors.Error {
	if suggestion != "" {
		e.WithHint("Did you mean '%s'?", suggestion)
	}
	return e
}
