package tsapi

import "strconv"

// BExpr is the closed union of boolean condition trees: *Cmp, *And, *Or, *Not and *Lit.
type BExpr interface {
	String() string
	bexpr()
}

// Cmp compares two operands; each operand is evaluated as an independent sub-program.
type Cmp struct {
	Lhs Node
	Op  Comparator
	Rhs Node
}

type And struct{ L, R BExpr }
type Or struct{ L, R BExpr }
type Not struct{ X BExpr }

// Lit is a clause without a comparator, judged by run-time truthiness of its raw text.
type Lit struct{ Raw string }

func (*Cmp) bexpr() {}
func (*And) bexpr() {}
func (*Or) bexpr()  {}
func (*Not) bexpr() {}
func (*Lit) bexpr() {}

func (c *Cmp) String() string {
	return "Cmp(" + operandString(c.Lhs) + " " + c.Op.String() + " " + operandString(c.Rhs) + ")"
}
func (a *And) String() string { return "And(" + a.L.String() + ", " + a.R.String() + ")" }
func (o *Or) String() string  { return "Or(" + o.L.String() + ", " + o.R.String() + ")" }
func (n *Not) String() string { return "Not(" + n.X.String() + ")" }
func (l *Lit) String() string { return "Lit(" + l.Raw + ")" }

// operandString shows synthetic operand packets as the atom they came from.
func operandString(n Node) string {
	p, ok := n.(*Packet)
	if !ok {
		return "<node>"
	}
	if p.Namespace == "" && p.Arg != nil {
		switch p.Op {
		case "var", "num", "bool":
			return p.Arg.Text
		case "str":
			return strconv.Quote(p.Arg.Text)
		}
	}
	return p.String()
}

// CmpBase is one of the three canonical comparisons.
type CmpBase uint8

const (
	CmpEq CmpBase = iota
	CmpLt
	CmpGt
)

// Comparator is the canonical form of the six surface operators.
// Evaluation branches only on Base, then ORs in equality when IncludeEq, then inverts when Negate.
type Comparator struct {
	Base      CmpBase
	IncludeEq bool
	Negate    bool
}

// ComparatorFor maps a surface operator (symbol or keyword alias) to its canonical form.
func ComparatorFor(sym string) (Comparator, bool) {
	switch sym {
	case "==", "[eq]":
		return Comparator{Base: CmpEq}, true
	case "!=", "[ne]":
		return Comparator{Base: CmpEq, Negate: true}, true
	case "<", "[lt]":
		return Comparator{Base: CmpLt}, true
	case "<=", "[le]":
		return Comparator{Base: CmpLt, IncludeEq: true}, true
	case ">", "[gt]":
		return Comparator{Base: CmpGt}, true
	case ">=", "[ge]":
		return Comparator{Base: CmpGt, IncludeEq: true}, true
	}
	return Comparator{}, false
}

func (c Comparator) String() string {
	switch {
	case c.Base == CmpEq && c.Negate:
		return "!="
	case c.Base == CmpEq:
		return "=="
	case c.Base == CmpLt && c.IncludeEq:
		return "<="
	case c.Base == CmpLt:
		return "<"
	case c.Base == CmpGt && c.IncludeEq:
		return ">="
	default:
		return ">"
	}
}
