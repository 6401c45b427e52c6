/*
Package expr parses and evaluates the restricted expressions used for
calculated attributes and row queries.

The grammar covers attribute names (bare identifiers or `back-quoted`),
numeric literals, quoted string literals, the arithmetic operators + - * /,
parentheses, comparisons == != < <= > >=, and boolean and/or/not (also
written & | ~).  Evaluation is element-wise over whole columns.
*/
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/janelia-flyem/bgrid/bgrid"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func syntaxError(src string, pos int, format string, args ...interface{}) error {
	return fmt.Errorf("expression %q at %d: %s: %w", src, pos, fmt.Sprintf(format, args...), bgrid.ErrValue)
}

var keywordOps = map[string]string{
	"and": "and",
	"or":  "or",
	"not": "not",
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r := rune(src[i])
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++

		case r == '\'' || r == '"':
			end := strings.IndexByte(src[i+1:], src[i])
			if end < 0 {
				return nil, syntaxError(src, i, "unterminated string")
			}
			toks = append(toks, token{kind: tokString, text: src[i+1 : i+1+end], pos: i})
			i += end + 2

		case r == '`':
			end := strings.IndexByte(src[i+1:], '`')
			if end < 0 {
				return nil, syntaxError(src, i, "unterminated quoted name")
			}
			toks = append(toks, token{kind: tokIdent, text: src[i+1 : i+1+end], pos: i})
			i += end + 2

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				k := j + 1
				if k < len(src) && (src[k] == '+' || src[k] == '-') {
					k++
				}
				if k < len(src) && unicode.IsDigit(rune(src[k])) {
					j = k
					for j < len(src) && unicode.IsDigit(rune(src[j])) {
						j++
					}
				}
			}
			v, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, syntaxError(src, i, "bad number %q", src[i:j])
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], num: v, pos: i})
			i = j

		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(src) && (src[j] == '_' || unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j]))) {
				j++
			}
			word := src[i:j]
			if op, ok := keywordOps[strings.ToLower(word)]; ok {
				toks = append(toks, token{kind: tokOp, text: op, pos: i})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word, pos: i})
			}
			i = j

		default:
			op := ""
			for _, cand := range []string{"==", "!=", "<=", ">=", "<", ">", "+", "-", "*", "/", "&", "|", "~"} {
				if strings.HasPrefix(src[i:], cand) {
					op = cand
					break
				}
			}
			if op == "" {
				return nil, syntaxError(src, i, "unexpected character %q", r)
			}
			switch op {
			case "&":
				toks = append(toks, token{kind: tokOp, text: "and", pos: i})
			case "|":
				toks = append(toks, token{kind: tokOp, text: "or", pos: i})
			case "~":
				toks = append(toks, token{kind: tokOp, text: "not", pos: i})
			default:
				toks = append(toks, token{kind: tokOp, text: op, pos: i})
			}
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}
