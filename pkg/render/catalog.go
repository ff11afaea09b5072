package render

import (
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/glamour"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/tsapi"
)

var catalogIntro = heredoc.Doc(`
	# TagSpeak operations

	A packet is written ` + "`[op@arg]`" + `, optionally with a namespace ` + "`[ns:op]`" + `,
	a mode ` + "`[op(mode)]`" + ` and a body ` + "`[op]{...}`" + `.
	Packets chain left to right with ` + "`>`" + `; each one sees the value of the one before.
	Any defined tag can be called as ` + "`[name]`" + `.
`)

// CatalogMarkdown lists the entries as a markdown table, in the order given.
func CatalogMarkdown(entries []interp.Entry) string {
	var sb strings.Builder
	sb.WriteString(catalogIntro)
	sb.WriteString("\n| Packet | What it does |\n|---|---|\n")
	for _, e := range entries {
		usage := e.Usage
		if usage == "" {
			usage = "[" + e.Token() + "]"
		}
		sb.WriteString("| `" + escapeCell(usage) + "` | " + escapeCell(e.Summary) + " |\n")
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Markdown renders markdown for a terminal.
// style is one of glamour's standard styles ("dark", "light", "notty", "ascii", ...);
// width is the word wrap column.
//
// Errors:
//
//   - tagspeak-error-internal -- if the renderer cannot be built or fails.
func Markdown(md string, style string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", tsapi.ErrorInternal("building markdown renderer", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", tsapi.ErrorInternal("rendering markdown", err)
	}
	return out, nil
}
