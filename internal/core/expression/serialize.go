package expression

import (
	"strconv"
	"strings"
)

// Serialize renders e in canonical form. Nested operators are parenthesised
// and failures render as FAILED("reason",expr).
func Serialize(e Expr) string {
	p := printer{quote: '"'}
	p.write(e, false)
	return p.sb.String()
}

// Format renders e like Serialize but with single quoted failure reasons,
// the form used in logs.
func Format(e Expr) string {
	p := printer{quote: '\''}
	p.write(e, false)
	return p.sb.String()
}

type printer struct {
	sb    strings.Builder
	quote byte
}

func (p *printer) write(e Expr, nested bool) {
	switch n := e.(type) {
	case nil:
		p.sb.WriteString("null")
	case *Number:
		p.sb.WriteString(strconv.FormatFloat(n.Value, 'f', -1, 64))
	case *Duration:
		p.sb.WriteString(strconv.FormatFloat(n.Value, 'f', -1, 64))
		p.sb.WriteString(n.Unit)
	case *Bool:
		p.sb.WriteString(strconv.FormatBool(n.Value))
	case *Text:
		p.sb.WriteString(strconv.Quote(n.Value))
	case *Variable:
		p.sb.WriteString(n.Name)
	case *Point:
		p.sb.WriteByte('[')
		p.sb.WriteString(n.ID)
		p.sb.WriteByte(']')
	case *Unary:
		p.sb.WriteString(n.Op)
		p.write(n.Operand, true)
	case *Binary:
		if nested {
			p.sb.WriteByte('(')
		}
		p.write(n.Left, true)
		p.sb.WriteByte(' ')
		p.sb.WriteString(n.Op)
		p.sb.WriteByte(' ')
		p.write(n.Right, true)
		if nested {
			p.sb.WriteByte(')')
		}
	case *Call:
		p.sb.WriteString(n.Name)
		p.sb.WriteByte('(')
		p.list(n.Args)
		p.sb.WriteByte(')')
	case *Array:
		p.sb.WriteByte('{')
		p.list(n.Items)
		p.sb.WriteByte('}')
	case *Property:
		p.write(n.Target, true)
		p.sb.WriteByte('.')
		p.sb.WriteString(n.Name)
	case *Failed:
		p.sb.WriteString("FAILED(")
		p.sb.WriteByte(p.quote)
		p.sb.WriteString(n.Reason)
		p.sb.WriteByte(p.quote)
		p.sb.WriteByte(',')
		p.write(n.Expr, false)
		p.sb.WriteByte(')')
	}
}

func (p *printer) list(items []Expr) {
	for i, it := range items {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.write(it, false)
	}
}
