package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tagspeak/tagspeak/tsapi"
)

// Precedence, lowest first: or, and, not, comparison, atom.
// Because not sits above comparison, `!x == y` reads as `!(x == y)`.

var comparators = []string{
	"==", "!=", "<=", ">=", "<", ">",
	"[eq]", "[ne]", "[le]", "[ge]", "[lt]", "[gt]",
}

var keywords = []string{
	"[or]", "[and]", "[not]",
	"[eq]", "[ne]", "[le]", "[ge]", "[lt]", "[gt]",
}

// ParseCond parses condition text as found inside `if@(...)` or a `store:context(...)` mode.
//
// Errors:
//
//   - tagspeak-error-parse -- with kind "bad-condition" (or a packet parse kind for embedded packets).
func ParseCond(text string) (tsapi.BExpr, error) {
	return parseCond(text, tsapi.Pos{Line: 1, Col: 1}, nil)
}

// ParseOperand parses a single condition operand: a number, string, boolean, identifier or packet.
// Lit clauses are evaluated through this at run time.
//
// Errors:
//
//   - tagspeak-error-parse -- if the text is not exactly one operand.
func ParseOperand(text string) (tsapi.Node, error) {
	p := newParser(text, tsapi.Pos{Line: 1, Col: 1}, nil)
	n, err := p.operand()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return nil, p.fail(tsapi.ParseBadCondition, p.pos(), fmt.Sprintf("unexpected %q after operand", p.peek()))
	}
	return n, nil
}

func parseCond(text string, base tsapi.Pos, lines []string) (tsapi.BExpr, error) {
	p := newParser(text, base, lines)
	p.skipSpace()
	if p.atEnd() {
		return nil, p.fail(tsapi.ParseBadCondition, base, "empty condition")
	}
	e, err := p.condOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return nil, p.fail(tsapi.ParseBadCondition, p.pos(), fmt.Sprintf("unexpected %q in condition", p.peek()))
	}
	return e, nil
}

func (p *parser) eat(tokens ...string) bool {
	for _, t := range tokens {
		if p.hasPrefix(t) {
			p.skipN(len(t))
			return true
		}
	}
	return false
}

func (p *parser) condOr() (tsapi.BExpr, error) {
	l, err := p.condAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !p.eat("||", "[or]") {
			return l, nil
		}
		r, err := p.condAnd()
		if err != nil {
			return nil, err
		}
		l = &tsapi.Or{L: l, R: r}
	}
}

func (p *parser) condAnd() (tsapi.BExpr, error) {
	l, err := p.condNot()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !p.eat("&&", "[and]") {
			return l, nil
		}
		r, err := p.condNot()
		if err != nil {
			return nil, err
		}
		l = &tsapi.And{L: l, R: r}
	}
}

func (p *parser) condNot() (tsapi.BExpr, error) {
	p.skipSpace()
	if p.eat("[not]") || p.peek() == '!' && p.peekAt(1) != '=' && p.eat("!") {
		x, err := p.condNot()
		if err != nil {
			return nil, err
		}
		return &tsapi.Not{X: x}, nil
	}
	return p.condCmp()
}

func (p *parser) condCmp() (tsapi.BExpr, error) {
	p.skipSpace()
	if p.peek() == '(' {
		open := p.pos()
		p.advance()
		e, err := p.condOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.fail(tsapi.ParseBadCondition, open, "missing ')' in condition")
		}
		p.advance()
		return e, nil
	}
	start := p.off
	lhs, err := p.operand()
	if err != nil {
		return nil, err
	}
	end := p.off
	p.skipSpace()
	cmp, ok := p.comparator()
	if !ok {
		return &tsapi.Lit{Raw: strings.TrimSpace(p.src[start:end])}, nil
	}
	rhs, err := p.operand()
	if err != nil {
		return nil, err
	}
	return &tsapi.Cmp{Lhs: lhs, Op: cmp, Rhs: rhs}, nil
}

func (p *parser) comparator() (tsapi.Comparator, bool) {
	for _, sym := range comparators {
		if p.hasPrefix(sym) {
			p.skipN(len(sym))
			return tsapi.ComparatorFor(sym)
		}
	}
	return tsapi.Comparator{}, false
}

func (p *parser) atKeyword() (string, bool) {
	for _, kw := range keywords {
		if p.hasPrefix(kw) {
			return kw, true
		}
	}
	return "", false
}

// operand parses an atom into the packet that produces its value.
func (p *parser) operand() (tsapi.Node, error) {
	p.skipSpace()
	at := p.pos()
	c := p.peek()
	switch {
	case p.atEnd() || c == ')':
		return nil, p.fail(tsapi.ParseBadCondition, at, "expected a value")
	case c == '"' || c == '\'':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return &tsapi.Packet{Pos: at, Op: "str", Arg: tsapi.StrArg(s)}, nil
	case c == '[':
		if kw, ok := p.atKeyword(); ok {
			return nil, p.fail(tsapi.ParseBadCondition, at, fmt.Sprintf("expected a value before %s", kw))
		}
		tags := p.tags
		p.tags = nil
		pkt, _, _, err := p.packet()
		p.tags = tags
		if err != nil {
			return nil, err
		}
		return pkt, nil
	case isDigit(c) || (c == '-' || c == '.') && isDigit(p.peekAt(1)):
		start := p.off
		p.advance()
		for isDigit(p.peek()) || p.peek() == '.' || p.peek() == 'e' || p.peek() == 'E' ||
			(p.peek() == '-' || p.peek() == '+') && (p.src[p.off-1] == 'e' || p.src[p.off-1] == 'E') {
			p.advance()
		}
		text := p.src[start:p.off]
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.fail(tsapi.ParseBadCondition, at, fmt.Sprintf("%q is not a number", text))
		}
		return &tsapi.Packet{Pos: at, Op: "num", Arg: &tsapi.Arg{Kind: tsapi.ArgNumber, Text: text, Num: f}}, nil
	case isIdentStart(c):
		start := p.off
		for isIdentStart(p.peek()) || isDigit(p.peek()) || p.peek() == '.' {
			p.advance()
		}
		name := p.src[start:p.off]
		if name == "true" || name == "false" {
			return &tsapi.Packet{Pos: at, Op: "bool", Arg: tsapi.IdentArg(name)}, nil
		}
		return &tsapi.Packet{Pos: at, Op: "var", Arg: tsapi.IdentArg(name)}, nil
	}
	return nil, p.fail(tsapi.ParseBadCondition, at, fmt.Sprintf("unexpected %q in condition", c))
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c >= 0x80
}
