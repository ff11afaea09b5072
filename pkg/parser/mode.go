package parser

import (
	"fmt"
	"strings"

	"github.com/tagspeak/tagspeak/tsapi"
)

// ParseMode splits the raw mode text of a packet (the part between the parentheses in `rand(1,10)`)
// into its comma-separated arguments.
// Arguments are trimmed; a quoted argument is unquoted; parentheses and brackets nest,
// so commas inside them do not split.
//
// Errors:
//
//   - tagspeak-error-invalid -- if a quote or bracket is left open.
func ParseMode(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var (
		args  []string
		cur   strings.Builder
		depth int
		quote byte
		// quoted marks that the current argument came entirely from a quoted string.
		quoted bool
	)
	push := func() {
		s := cur.String()
		if !quoted {
			s = strings.TrimSpace(s)
		}
		args = append(args, s)
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if quote != 0 {
			switch {
			case c == '\\' && i+1 < len(raw):
				i++
				cur.WriteByte(unescape(raw[i]))
			case c == quote:
				quote = 0
			default:
				cur.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"', '\'':
			if depth == 0 && strings.TrimSpace(cur.String()) == "" {
				cur.Reset()
				quote, quoted = c, true
				continue
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				push()
				continue
			}
		case ' ', '\t':
			if quoted {
				continue
			}
		}
		cur.WriteByte(c)
	}
	if quote != 0 {
		return nil, tsapi.ErrorInvalid(fmt.Sprintf("mode %q has an unterminated string", raw), [2]string{"mode", raw})
	}
	if depth != 0 {
		return nil, tsapi.ErrorInvalid(fmt.Sprintf("mode %q has unbalanced brackets", raw), [2]string{"mode", raw})
	}
	push()
	return args, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	}
	return c
}
