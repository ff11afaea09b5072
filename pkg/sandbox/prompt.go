package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/tagspeak/tagspeak/pkg/config"
)

// Answer is the user's reply to a consent prompt.
type Answer int

const (
	AnswerNo Answer = iota
	AnswerYes
	AnswerAlways
)

// Prompter asks for consent to a gated request.
type Prompter interface {
	Ask(ctx context.Context, req Request) (Answer, error)
}

// TerminalPrompter asks on a line-oriented terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	mu sync.Mutex // one question at a time, async bodies included
	rd *bufio.Reader
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{In: in, Out: out, rd: bufio.NewReader(in)}
}

// Ask prints the request and reads one line: y/yes, a/always, anything else is no.
// End of input counts as no.
func (p *TerminalPrompter) Ask(ctx context.Context, req Request) (Answer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rd == nil {
		p.rd = bufio.NewReader(p.In)
	}
	fmt.Fprintf(p.Out, "%s wants to %s. Allow? [y]es / [n]o / [a]lways: ", req.Op, req.describe())
	line, err := p.rd.ReadString('\n')
	if err != nil && err != io.EOF {
		return AnswerNo, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return AnswerYes, nil
	case "a", "always":
		return AnswerAlways, nil
	}
	return AnswerNo, nil
}

// Interactive reports whether consent prompts should be shown:
// prompts are not disabled by config and f is a terminal.
func Interactive(cfg config.Config, f *os.File) bool {
	if cfg.Prompts.NonInteractive || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
