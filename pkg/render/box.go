/*
Package render draws things meant for a human at a terminal:
the boxed error report and the operation catalog.

Nothing here changes what an error means; the report only reads codes and details.
*/
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tagspeak/tagspeak/tsapi"
)

var hints = map[string]string{
	tsapi.ECodeSandboxRequired:   "create a red.tgsk file in the project directory to enable file, exec, network and run packets",
	tsapi.ECodeSandboxBoundary:   "paths are confined to the directory holding red.tgsk; \"/\" is that directory",
	tsapi.ECodeConsentRequired:   "wrap the packet in [yellow]{...}, or allow it in tagspeak.yaml",
	tsapi.ECodeRunDepthExceeded:  "scripts that run each other need a way out; or raise run.max_depth",
	tsapi.ECodeVariableMissing:   "store a value first, e.g. [int@1]>[store@name]",
	tsapi.ECodeVariableExists:    "rigid variables are bound once; pick another name",
	tsapi.ECodeNonNumeric:        "only numbers, booleans and numeric strings convert to numbers",
	tsapi.ECodeUndefinedFunction: "define it with [funct:name]{...} or [name: ...]",
	tsapi.ECodeNetworkDenied:     "add the URL to network.allow in tagspeak.yaml",
	tsapi.ECodeFormatUnsupported: "documents can be json, yaml, jsonc or cbor",
	tsapi.ECodeHandleUnknown:     "load a document and store it first, e.g. [load@\"data.json\"]>[store@h]",
	tsapi.ECodeAsyncUnknown:      "start it with [async@name]{...} before awaiting",
	tsapi.ECodeAsyncDuplicate:    "async names must be unique while the task is pending",
	tsapi.ECodeReplAlreadyActive: "only one REPL can be open at a time",
	tsapi.ECodeDocumentConflict:  "the file changed on disk after it was loaded; load it again",
}

// Report renders errors as a bordered box.
type Report struct {
	r *lipgloss.Renderer
}

// NewReport styles for w, using whatever colors w supports.
func NewReport(w io.Writer) *Report {
	return &Report{r: lipgloss.NewRenderer(w)}
}

// PlainReport never emits escape codes.
func PlainReport() *Report {
	r := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.Ascii))
	r.SetColorProfile(termenv.Ascii)
	return &Report{r: r}
}

// Error renders err.  src is the script that was run, or "" when unknown;
// with it, the offending line is shown with a caret under the column.
// Errors from a nested run name their own script and do not use src.
func (rep *Report) Error(err error, src string) string {
	code := tsapi.Code(err)
	title := rep.r.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dim := rep.r.NewStyle().Faint(true)
	hintStyle := rep.r.NewStyle().Foreground(lipgloss.Color("11"))

	lines := []string{title.Render(code), err.Error()}

	line, _ := strconv.Atoi(tsapi.Detail(err, "line"))
	col, _ := strconv.Atoi(tsapi.Detail(err, "col"))
	if line > 0 {
		where := fmt.Sprintf("at line %d, column %d", line, col)
		if pkt := tsapi.Detail(err, "packet"); pkt != "" {
			where += " in [" + pkt + "]"
		}
		if script := tsapi.Detail(err, "script"); script != "" {
			// raised by a nested run; src is some other file.
			where += " of " + script
			src = ""
		}
		lines = append(lines, "", dim.Render(where))
		if text, ok := sourceLine(src, line); ok {
			lines = append(lines, snippet(line, col, text)...)
		} else if s := tsapi.Detail(err, "snippet"); s != "" {
			lines = append(lines, "  "+s)
		}
	}

	if hint := hintFor(err, code); hint != "" {
		lines = append(lines, "", hintStyle.Render("hint: "+hint))
	}

	box := rep.r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("9")).
		Padding(0, 1)
	return box.Render(strings.Join(lines, "\n"))
}

func hintFor(err error, code string) string {
	switch code {
	case tsapi.ECodeParse:
		return tsapi.Detail(err, "hint")
	case tsapi.ECodeUnknownOperation:
		if s := tsapi.Detail(err, "suggestion"); s != "" {
			return "did you mean [" + s + "]?  `tagspeak ops` lists every operation"
		}
		return "`tagspeak ops` lists every operation"
	}
	return hints[code]
}

func sourceLine(src string, line int) (string, bool) {
	if src == "" {
		return "", false
	}
	all := strings.Split(src, "\n")
	if line > len(all) {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimRight(all[line-1], "\r"), "\t", " "), true
}

// snippet numbers the line and puts a caret under col (1-based, in runes).
func snippet(line, col int, text string) []string {
	gutter := strconv.Itoa(line)
	pad := strings.Repeat(" ", len(gutter))
	caret := ""
	if col > 0 {
		caret = strings.Repeat(" ", col-1) + "^"
	}
	return []string{
		gutter + " | " + text,
		pad + " | " + caret,
	}
}
