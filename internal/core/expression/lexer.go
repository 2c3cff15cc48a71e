package expression

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokDuration
	tokString
	tokIdent
	tokBracket
	tokOp
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// canonical spellings for operator aliases
var opAliases = map[string]string{
	"&&":  "&",
	"||":  "|",
	"=":   "==",
	"<>":  "!=",
	"AND": "&",
	"OR":  "|",
	"NOT": "!",
}

// durationUnits maps period suffixes to their length.
var durationUnits = map[string]time.Duration{
	"s":   time.Second,
	"m":   time.Minute,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   24 * time.Hour,
	"w":   7 * 24 * time.Hour,
}

func tokenize(src string) ([]token, error) {
	var out []token
	rs := []rune(src)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			kind := tokNumber
			// a unit suffix makes the literal a period: 15m, 2h, -4d
			j := i
			for j < len(rs) && unicode.IsLetter(rs[j]) {
				j++
			}
			if _, ok := durationUnits[strings.ToLower(string(rs[i:j]))]; ok && j > i {
				kind, i = tokDuration, j
			}
			out = append(out, token{kind: kind, text: string(rs[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			word := string(rs[start:i])
			if op, ok := opAliases[strings.ToUpper(word)]; ok {
				out = append(out, token{kind: tokOp, text: op, pos: start})
				continue
			}
			out = append(out, token{kind: tokIdent, text: word, pos: start})
		case r == '[':
			start := i
			depth := 0
			for i < len(rs) {
				if rs[i] == '[' {
					depth++
				} else if rs[i] == ']' {
					depth--
					if depth == 0 {
						break
					}
				}
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("unterminated [ at %d", start)
			}
			out = append(out, token{kind: tokBracket, text: strings.TrimSpace(string(rs[start+1 : i])), pos: start})
			i++
		case r == '"' || r == '\'':
			start := i
			quote := r
			i++
			var sb strings.Builder
			for i < len(rs) && rs[i] != quote {
				if rs[i] == '\\' && i+1 < len(rs) {
					i++
				}
				sb.WriteRune(rs[i])
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("unterminated string at %d", start)
			}
			i++
			out = append(out, token{kind: tokString, text: sb.String(), pos: start})
		default:
			start := i
			two := ""
			if i+1 < len(rs) {
				two = string(rs[i : i+2])
			}
			switch two {
			case "<=", ">=", "==", "!=", "&&", "||", "<>":
				if alias, ok := opAliases[two]; ok {
					two = alias
				}
				out = append(out, token{kind: tokOp, text: two, pos: start})
				i += 2
				continue
			}
			kind := tokOp
			text := string(r)
			switch r {
			case '(':
				kind = tokLParen
			case ')':
				kind = tokRParen
			case '{':
				kind = tokLBrace
			case '}':
				kind = tokRBrace
			case ',':
				kind = tokComma
			case '.':
				kind = tokDot
			case '+', '-', '*', '/', '%', '<', '>', '!', '&', '|':
			case '=':
				text = "=="
			default:
				return nil, fmt.Errorf("unexpected character %q at %d", r, start)
			}
			out = append(out, token{kind: kind, text: text, pos: start})
			i++
		}
	}
	out = append(out, token{kind: tokEOF, pos: len(rs)})
	return out, nil
}
