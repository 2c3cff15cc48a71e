package expression

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax wraps every parse failure.
var ErrSyntax = errors.New("expression syntax error")

var precedence = map[string]int{
	"|":  1,
	"&":  2,
	"==": 3,
	"!=": 3,
	"<":  4,
	"<=": 4,
	">":  4,
	">=": 4,
	"+":  5,
	"-":  5,
	"*":  6,
	"/":  6,
	"%":  6,
}

// Parse compiles text into an expression tree.
func Parse(text string) (Expr, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return e, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at %d: %s", ErrSyntax, p.peek().pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(kind tokenKind, what string) error {
	if p.peek().kind != kind {
		return p.errorf("expected %s", what)
	}
	p.next()
	return nil
}

func (p *parser) parseExpr(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec, ok := precedence[t.text]
		if t.kind != tokOp || !ok || prec <= minPrec {
			return left, nil
		}
		p.next()
		right, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	t := p.peek()
	if t.kind == tokOp && t.text == "-" && p.toks[p.pos+1].kind == tokDuration {
		p.next()
		d, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		neg := *d.(*Duration)
		neg.Value = -neg.Value
		return &neg, nil
	}
	if t.kind == tokOp && (t.text == "-" || t.text == "!") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.text, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokDot:
			p.next()
			name := p.next()
			if name.kind != tokIdent {
				return nil, p.errorf("expected property name")
			}
			e = &Property{Target: e, Name: name.text}
		case tokLParen:
			v, ok := e.(*Variable)
			if !ok {
				return e, nil
			}
			p.next()
			args, err := p.parseList(tokRParen, ")")
			if err != nil {
				return nil, err
			}
			e = &Call{Name: strings.ToUpper(v.Name), Args: args}
		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, t.text)
		}
		return &Number{Value: v}, nil
	case tokDuration:
		i := strings.IndexFunc(t.text, unicode.IsLetter)
		v, err := strconv.ParseFloat(t.text[:i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid period %q", ErrSyntax, t.text)
		}
		return &Duration{Value: v, Unit: strings.ToLower(t.text[i:])}, nil
	case tokString:
		return &Text{Value: t.text}, nil
	case tokBracket:
		if t.text == "" {
			return nil, fmt.Errorf("%w: empty [] at %d", ErrSyntax, t.pos)
		}
		return &Point{ID: t.text}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return &Bool{Value: true}, nil
		case "false":
			return &Bool{Value: false}, nil
		}
		return &Variable{Name: t.text}, nil
	case tokLParen:
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokLBrace:
		items, err := p.parseList(tokRBrace, "}")
		if err != nil {
			return nil, err
		}
		return &Array{Items: items}, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	return nil, fmt.Errorf("%w at %d: unexpected %q", ErrSyntax, t.pos, t.text)
}

func (p *parser) parseList(end tokenKind, what string) ([]Expr, error) {
	var items []Expr
	if p.peek().kind == end {
		p.next()
		return items, nil
	}
	for {
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if err := p.expect(end, what); err != nil {
			return nil, err
		}
		return items, nil
	}
}
