package tsapi

import (
	"strconv"
	"strings"
)

// Pos is a 1-based source location.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
}

// Node is the closed union of syntax tree nodes: *Chain, *Block, *Packet and *If.
// Trees are built once by the parser and never mutated afterwards.
type Node interface {
	Position() Pos
	node()
}

// Chain is a sequence joined by '>'; each step's result is the next step's input.
type Chain struct {
	Pos   Pos
	Nodes []Node
}

// Block is a sequence of statements, always the content of a '{}' body or a whole program.
type Block struct {
	Pos   Pos
	Nodes []Node
}

// If is a conditional clause; Else holds either the else body or a single nested *If for an 'or' clause.
type If struct {
	Pos  Pos
	Cond BExpr
	Then []Node
	Else []Node
}

// Packet is the atomic script unit `[ns:op(mode)@arg]{body}`.
type Packet struct {
	Pos       Pos
	Namespace string
	Op        string
	Mode      *string // raw text between the parentheses, if any
	Arg       *Arg
	Body      []Node
	HasBody   bool
}

func (n *Chain) Position() Pos  { return n.Pos }
func (n *Block) Position() Pos  { return n.Pos }
func (n *If) Position() Pos     { return n.Pos }
func (n *Packet) Position() Pos { return n.Pos }

func (*Chain) node()  {}
func (*Block) node()  {}
func (*If) node()     {}
func (*Packet) node() {}

// Token renders the dispatch-relevant head of the packet, e.g. "store:rigid" or "log(json)".
func (p *Packet) Token() string {
	var sb strings.Builder
	if p.Namespace != "" {
		sb.WriteString(p.Namespace)
		sb.WriteByte(':')
	}
	sb.WriteString(p.Op)
	if p.Mode != nil {
		sb.WriteByte('(')
		sb.WriteString(*p.Mode)
		sb.WriteByte(')')
	}
	return sb.String()
}

// ModeText returns the raw mode string, or "" when the packet has none.
func (p *Packet) ModeText() string {
	if p.Mode == nil {
		return ""
	}
	return *p.Mode
}

// String renders the packet head back into source form (bodies are elided).
func (p *Packet) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(p.Token())
	if p.Arg != nil {
		sb.WriteByte('@')
		sb.WriteString(p.Arg.Source())
	}
	sb.WriteByte(']')
	if p.HasBody {
		sb.WriteString("{...}")
	}
	return sb.String()
}

// ArgKind discriminates Arg.
type ArgKind uint8

const (
	ArgStr ArgKind = iota
	ArgIdent
	ArgNumber
	ArgCond
)

// Arg is the text after '@'.
// Text holds the string contents for ArgStr, the raw text for ArgIdent and ArgNumber,
// and the text inside the parentheses for ArgCond. Num is only meaningful for ArgNumber.
type Arg struct {
	Kind ArgKind
	Text string
	Num  float64
}

func StrArg(s string) *Arg     { return &Arg{Kind: ArgStr, Text: s} }
func IdentArg(s string) *Arg   { return &Arg{Kind: ArgIdent, Text: s} }
func CondArg(s string) *Arg    { return &Arg{Kind: ArgCond, Text: s} }
func NumberArg(f float64) *Arg { return &Arg{Kind: ArgNumber, Text: strconv.FormatFloat(f, 'g', -1, 64), Num: f} }

// Source renders the argument the way it would be written.
func (a *Arg) Source() string {
	switch a.Kind {
	case ArgStr:
		return strconv.Quote(a.Text)
	case ArgCond:
		return "(" + a.Text + ")"
	default:
		return a.Text
	}
}
