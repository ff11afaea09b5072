/*
Package parser turns TagSpeak script text into a tsapi syntax tree.

Scripts are parsed wholesale before anything runs: a program is a list of
statements, each statement a chain of packets joined by '>'.
Tag definitions (`[name: ...]`) are collected into Program.Tags while parsing
and never appear in the live tree.
Conditional clauses (if, or, else, then) are folded into tsapi.If nodes here,
so the evaluator never sees them as ordinary packets.
*/
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tagspeak/tagspeak/tsapi"
)

// Program is a fully parsed script.
type Program struct {
	Root *tsapi.Block
	Tags map[string][]tsapi.Node
}

// Parse parses a complete script.
//
// Errors:
//
//   - tagspeak-error-parse -- when the script is malformed; the "kind" detail tells which way.
func Parse(src string) (*Program, error) {
	p := newParser(src, tsapi.Pos{Line: 1, Col: 1}, nil)
	p.tags = map[string][]tsapi.Node{}
	start := p.pos()
	nodes, err := p.statements(0, start)
	if err != nil {
		return nil, err
	}
	return &Program{
		Root: &tsapi.Block{Pos: start, Nodes: nodes},
		Tags: p.tags,
	}, nil
}

type parser struct {
	src   string
	off   int
	line  int
	col   int
	lines []string // whole-source lines, for snippets

	// nil when tag definitions are not allowed (condition operands).
	tags map[string][]tsapi.Node
}

type mark struct{ off, line, col int }

// unit is one packet of a statement list before conditionals are folded.
type unit struct {
	pkt    *tsapi.Packet
	argPos tsapi.Pos
	joined bool // preceded by '>'
}

func newParser(src string, base tsapi.Pos, lines []string) *parser {
	if lines == nil {
		lines = strings.Split(src, "\n")
	}
	return &parser{src: src, line: base.Line, col: base.Col, lines: lines}
}

func (p *parser) atEnd() bool { return p.off >= len(p.src) }

func (p *parser) peek() byte { return p.peekAt(0) }

func (p *parser) peekAt(n int) byte {
	if p.off+n >= len(p.src) {
		return 0
	}
	return p.src[p.off+n]
}

func (p *parser) advance() byte {
	if p.atEnd() {
		return 0
	}
	c := p.src[p.off]
	p.off++
	if c == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return c
}

func (p *parser) pos() tsapi.Pos { return tsapi.Pos{Line: p.line, Col: p.col} }

func (p *parser) save() mark { return mark{p.off, p.line, p.col} }

func (p *parser) restore(m mark) { p.off, p.line, p.col = m.off, m.line, m.col }

func (p *parser) hasPrefix(s string) bool { return strings.HasPrefix(p.src[p.off:], s) }

func (p *parser) skipN(n int) {
	for i := 0; i < n; i++ {
		p.advance()
	}
}

func (p *parser) fail(kind string, at tsapi.Pos, hint string) error {
	snippet := ""
	if at.Line >= 1 && at.Line <= len(p.lines) {
		snippet = p.lines[at.Line-1]
	}
	return tsapi.ErrorParse(kind, at.Line, at.Col, snippet, hint)
}

// continuation reports whether a backslash line continuation starts here.
func (p *parser) continuation() int {
	if p.peek() != '\\' {
		return 0
	}
	switch {
	case p.peekAt(1) == '\n':
		return 2
	case p.peekAt(1) == '\r' && p.peekAt(2) == '\n':
		return 3
	}
	return 0
}

// skipSpace skips whitespace, line continuations and '#' comments between statements.
func (p *parser) skipSpace() {
	for !p.atEnd() {
		switch c := p.peek(); {
		case isSpace(c):
			p.advance()
		case c == '#':
			for !p.atEnd() && p.peek() != '\n' {
				p.advance()
			}
		case p.continuation() > 0:
			p.skipN(p.continuation())
		default:
			return
		}
	}
}

// skipInline skips blanks inside a packet head.
func (p *parser) skipInline() {
	for !p.atEnd() {
		switch {
		case p.peek() == ' ' || p.peek() == '\t':
			p.advance()
		case p.continuation() > 0:
			p.skipN(p.continuation())
		default:
			return
		}
	}
}

// statements parses until the closing byte end (0 for end of input) and folds conditionals.
func (p *parser) statements(end byte, open tsapi.Pos) ([]tsapi.Node, error) {
	var units []unit
	joined := false
	var joinPos tsapi.Pos
	afterTag := false
	for {
		p.skipSpace()
		if p.atEnd() {
			if end != 0 {
				return nil, p.fail(tsapi.ParseUnbalanced, open, fmt.Sprintf("missing %q to close %q opened here", end, opener(end)))
			}
			break
		}
		c := p.peek()
		if c == end {
			p.advance()
			break
		}
		switch c {
		case '}', ']', ')':
			return nil, p.fail(tsapi.ParseUnbalanced, p.pos(), fmt.Sprintf("unexpected %q with nothing to close", c))
		case '>':
			if len(units) == 0 || joined || afterTag {
				return nil, p.fail(tsapi.ParseUnexpectedToken, p.pos(), "'>' must join two packets")
			}
			joinPos = p.pos()
			p.advance()
			joined = true
			continue
		case '[':
		default:
			return nil, p.fail(tsapi.ParseUnexpectedToken, p.pos(), fmt.Sprintf("unexpected %q; a statement starts with '['", c))
		}
		pkt, argPos, isTag, err := p.packet()
		if err != nil {
			return nil, err
		}
		if isTag {
			if joined {
				return nil, p.fail(tsapi.ParseUnexpectedToken, joinPos, "a tag definition cannot be part of a chain")
			}
			afterTag = true
			continue
		}
		afterTag = false
		units = append(units, unit{pkt: pkt, argPos: argPos, joined: joined})
		joined = false
	}
	if joined {
		return nil, p.fail(tsapi.ParseUnexpectedToken, joinPos, "'>' has no packet after it")
	}
	return p.fold(units)
}

func opener(end byte) byte {
	switch end {
	case '}':
		return '{'
	case ']':
		return '['
	}
	return '('
}

// packet parses `[ns:op(mode)@arg]{body}` starting at '['.
// A tag definition is recorded in p.tags and reported with isTag.
func (p *parser) packet() (pkt *tsapi.Packet, argPos tsapi.Pos, isTag bool, err error) {
	open := p.pos()
	p.advance()
	p.skipInline()
	if p.peek() == ']' {
		return nil, argPos, false, p.fail(tsapi.ParseEmptyPacket, open, "packet has no operation")
	}
	word := p.word()
	if word == "" {
		switch {
		case p.atEnd():
			return nil, argPos, false, p.fail(tsapi.ParseUnbalanced, open, "unclosed '['")
		case p.peek() == '@':
			return nil, argPos, false, p.fail(tsapi.ParseEmptyPacket, open, "packet has no operation before '@'")
		}
		return nil, argPos, false, p.fail(tsapi.ParseUnexpectedToken, p.pos(), fmt.Sprintf("unexpected %q in packet name", p.peek()))
	}
	pkt = &tsapi.Packet{Pos: open, Op: word}

	if p.peek() == ':' {
		if next := p.peekAt(1); isSpace(next) || next == ']' {
			if p.tags == nil {
				return nil, argPos, false, p.fail(tsapi.ParseUnexpectedToken, open, "tag definitions are only allowed as statements")
			}
			p.advance()
			body, err := p.statements(']', open)
			if err != nil {
				return nil, argPos, false, err
			}
			p.tags[word] = body
			return nil, argPos, true, nil
		}
		p.advance()
		op := p.word()
		if op == "" {
			return nil, argPos, false, p.fail(tsapi.ParseEmptyPacket, open, fmt.Sprintf("namespace %q has no operation", word))
		}
		pkt.Namespace, pkt.Op = word, op
	}

	if p.peek() == '(' {
		modeOpen := p.pos()
		p.advance()
		text, err := p.balanced(')', modeOpen)
		if err != nil {
			return nil, argPos, false, err
		}
		pkt.Mode = &text
	}

	p.skipInline()
	if p.peek() == '@' {
		p.advance()
		p.skipInline()
		argPos = p.pos()
		arg, err := p.argument(open)
		if err != nil {
			return nil, argPos, false, err
		}
		pkt.Arg = arg
		if arg.Kind == tsapi.ArgCond {
			argPos.Col++ // past the '('
		}
	}

	p.skipInline()
	switch {
	case p.atEnd():
		return nil, argPos, false, p.fail(tsapi.ParseUnbalanced, open, "unclosed '['")
	case p.peek() != ']':
		return nil, argPos, false, p.fail(tsapi.ParseUnexpectedToken, p.pos(), fmt.Sprintf("unexpected %q after %s", p.peek(), pkt.Token()))
	}
	p.advance()

	m := p.save()
	for isSpace(p.peek()) {
		p.advance()
	}
	if p.peek() != '{' {
		p.restore(m)
		return pkt, argPos, false, nil
	}
	bodyOpen := p.pos()
	p.advance()
	body, err := p.statements('}', bodyOpen)
	if err != nil {
		return nil, argPos, false, err
	}
	pkt.Body, pkt.HasBody = body, true
	return pkt, argPos, false, nil
}

// word reads a namespace or operation name; a backslash escapes the next byte.
func (p *parser) word() string {
	var sb strings.Builder
	for !p.atEnd() {
		c := p.peek()
		switch {
		case c == '\\' && p.off+1 < len(p.src) && p.continuation() == 0:
			p.advance()
			sb.WriteByte(p.advance())
		case isWordByte(c):
			sb.WriteByte(p.advance())
		default:
			return sb.String()
		}
	}
	return sb.String()
}

func (p *parser) argument(open tsapi.Pos) (*tsapi.Arg, error) {
	switch c := p.peek(); {
	case p.atEnd():
		return nil, p.fail(tsapi.ParseUnbalanced, open, "unclosed '['")
	case c == ']':
		return nil, p.fail(tsapi.ParseEmptyArgument, p.pos(), "nothing after '@'")
	case c == '"' || c == '\'':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return tsapi.StrArg(s), nil
	case c == '(':
		m := p.save()
		start := p.pos()
		p.advance()
		text, err := p.balanced(')', start)
		if err != nil {
			return nil, err
		}
		p.skipInline()
		if p.peek() == ']' {
			return tsapi.CondArg(text), nil
		}
		// Something like `(1+2)*3`: the whole thing is raw text.
		p.restore(m)
	}
	raw, err := p.raw(open)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, p.fail(tsapi.ParseEmptyArgument, p.pos(), "nothing after '@'")
	}
	if looksNumeric(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return &tsapi.Arg{Kind: tsapi.ArgNumber, Text: raw, Num: f}, nil
		}
	}
	return tsapi.IdentArg(raw), nil
}

// raw reads argument text up to the ']' that closes the packet, leaving it unconsumed.
// Nested brackets and double-quoted strings are skipped over.
func (p *parser) raw(open tsapi.Pos) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		if p.atEnd() {
			return "", p.fail(tsapi.ParseUnbalanced, open, "unclosed '['")
		}
		switch c := p.peek(); {
		case c == ']' && depth == 0:
			return sb.String(), nil
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == '"':
			start := p.off
			if _, err := p.quoted(); err != nil {
				return "", err
			}
			sb.WriteString(p.src[start:p.off])
			continue
		case p.continuation() > 0:
			p.skipN(p.continuation())
			sb.WriteByte(' ')
			continue
		}
		sb.WriteByte(p.advance())
	}
}

// balanced reads text up to the matching close byte and consumes it.
// Parentheses, brackets and quoted strings nest.
func (p *parser) balanced(close byte, open tsapi.Pos) (string, error) {
	start := p.off
	var stack []byte
	for {
		if p.atEnd() {
			return "", p.fail(tsapi.ParseUnbalanced, open, fmt.Sprintf("missing %q to close %q opened here", close, opener(close)))
		}
		c := p.peek()
		switch {
		case len(stack) == 0 && c == close:
			text := p.src[start:p.off]
			p.advance()
			return text, nil
		case c == '"' || c == '\'':
			if _, err := p.quoted(); err != nil {
				return "", err
			}
			continue
		case c == '(':
			stack = append(stack, ')')
		case c == '[':
			stack = append(stack, ']')
		case c == '{':
			stack = append(stack, '}')
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", p.fail(tsapi.ParseUnbalanced, p.pos(), fmt.Sprintf("unexpected %q", c))
			}
			stack = stack[:len(stack)-1]
		}
		p.advance()
	}
}

// quoted reads a quoted string starting at the opening quote and returns its unescaped contents.
func (p *parser) quoted() (string, error) {
	start := p.pos()
	q := p.advance()
	var sb strings.Builder
	for {
		if p.atEnd() {
			return "", p.fail(tsapi.ParseUnterminatedString, start, fmt.Sprintf("string opened with %q is never closed", q))
		}
		c := p.advance()
		switch c {
		case q:
			return sb.String(), nil
		case '\\':
			if p.atEnd() {
				continue
			}
			switch e := p.advance(); e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '"', '\'':
				sb.WriteByte(e)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

// fold builds chains from the unit list, turning if/or/else/then runs into tsapi.If nodes.
func (p *parser) fold(units []unit) ([]tsapi.Node, error) {
	var out, cur []tsapi.Node
	flush := func() {
		switch len(cur) {
		case 0:
		case 1:
			out = append(out, cur[0])
		default:
			out = append(out, &tsapi.Chain{Pos: cur[0].Position(), Nodes: cur})
		}
		cur = nil
	}
	for i := 0; i < len(units); {
		u := units[i]
		var n tsapi.Node
		next := i + 1
		switch {
		case isClause(u.pkt, "if"):
			cond, j, err := p.conditional(units, i)
			if err != nil {
				return nil, err
			}
			n, next = cond, j
		case isClause(u.pkt, "or"), isClause(u.pkt, "else"), isClause(u.pkt, "then"):
			return nil, p.fail(tsapi.ParseUnexpectedToken, u.pkt.Pos, fmt.Sprintf("[%s] without a preceding [if]", u.pkt.Op))
		default:
			n = u.pkt
		}
		if !u.joined {
			flush()
		}
		cur = append(cur, n)
		i = next
	}
	flush()
	return out, nil
}

func (p *parser) conditional(units []unit, i int) (*tsapi.If, int, error) {
	u := units[i]
	if u.pkt.Arg == nil {
		return nil, 0, p.fail(tsapi.ParseBadCondition, u.pkt.Pos, fmt.Sprintf("[%s] needs a condition, as in [%s@(x > 1)]", u.pkt.Op, u.pkt.Op))
	}
	text := u.pkt.Arg.Text
	if u.pkt.Arg.Kind == tsapi.ArgStr {
		text = u.pkt.Arg.Source()
	}
	cond, err := parseCond(text, u.argPos, p.lines)
	if err != nil {
		return nil, 0, err
	}
	then, next, err := p.clauseBody(units, i)
	if err != nil {
		return nil, 0, err
	}
	node := &tsapi.If{Pos: u.pkt.Pos, Cond: cond, Then: then}
	if next < len(units) {
		switch nx := units[next].pkt; {
		case isClause(nx, "or"):
			sub, j, err := p.conditional(units, next)
			if err != nil {
				return nil, 0, err
			}
			node.Else, next = []tsapi.Node{sub}, j
		case isClause(nx, "else"):
			body, j, err := p.clauseBody(units, next)
			if err != nil {
				return nil, 0, err
			}
			node.Else, next = body, j
		}
	}
	return node, next, nil
}

// clauseBody takes the body attached to units[i], or the body of a following [then].
func (p *parser) clauseBody(units []unit, i int) ([]tsapi.Node, int, error) {
	pkt := units[i].pkt
	if pkt.HasBody {
		return pkt.Body, i + 1, nil
	}
	if i+1 < len(units) && isClause(units[i+1].pkt, "then") {
		then := units[i+1].pkt
		if !then.HasBody {
			return nil, 0, p.fail(tsapi.ParseUnexpectedToken, then.Pos, "[then] needs a {body}")
		}
		return then.Body, i + 2, nil
	}
	return nil, 0, p.fail(tsapi.ParseUnexpectedToken, pkt.Pos, fmt.Sprintf("[%s] needs a {body} or a following [then]{body}", pkt.Op))
}

func isClause(p *tsapi.Packet, name string) bool {
	return p.Namespace == "" && p.Mode == nil && p.Op == name
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '.' || c >= 0x80
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// looksNumeric keeps words such as "inf" or "nan" from becoming numbers.
func looksNumeric(s string) bool {
	c := s[0]
	if c == '-' || c == '+' {
		if len(s) == 1 {
			return false
		}
		c = s[1]
	}
	return isDigit(c) || c == '.'
}
