// Package render displays interpreted agent traces: styled terminal panels
// for people and DOT graphs for tooling.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ravi-parthasarathy/agenttrace/pkg/agent"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

const defaultWidth = 80

type styles struct {
	panel    lipgloss.Style
	errPanel lipgloss.Style
	title    lipgloss.Style
	errTitle lipgloss.Style
	code     lipgloss.Style
	warn     lipgloss.Style
	errText  lipgloss.Style
	dim      lipgloss.Style
	reply    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	panel := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1)
	return styles{
		panel:    panel,
		errPanel: panel.BorderForeground(lipgloss.Color("9")),
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		errTitle: r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		code:     r.NewStyle().Foreground(lipgloss.Color("14")),
		warn:     r.NewStyle().Foreground(lipgloss.Color("11")),
		errText:  r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("8")),
		reply:    r.NewStyle().Foreground(lipgloss.Color("15")),
	}
}

// Terminal writes human-readable output. Colour is used only when the
// writer is a terminal.
type Terminal struct {
	w      io.Writer
	width  int
	styles styles
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithWidth sets the panel width (default 80).
func WithWidth(n int) TerminalOption {
	return func(t *Terminal) { t.width = n }
}

// NewTerminal creates a Terminal writing to w.
func NewTerminal(w io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{w: w, width: defaultWidth, styles: newStyles(lipgloss.NewRenderer(w))}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Entry draws one trace step as a titled panel. Code is shown verbatim;
// failed observations use the error style.
func (t *Terminal) Entry(e trace.Entry) {
	panel, title := t.styles.panel, t.styles.title
	body := e.Text
	switch {
	case e.IsError:
		panel, title = t.styles.errPanel, t.styles.errTitle
		body = t.styles.errText.Render(body)
	case e.Kind == trace.KindCodeInterpreter:
		body = t.styles.code.Render(body)
	}
	content := title.Render(string(e.Kind))
	if strings.TrimSpace(e.Text) != "" {
		content += "\n" + body
	}
	fmt.Fprintln(t.w, panel.Width(t.width).Render(content))
}

// Warning prints a warning line.
func (t *Terminal) Warning(msg string) {
	fmt.Fprintln(t.w, t.styles.warn.Render("⚠ "+msg))
}

// Error prints an error line.
func (t *Terminal) Error(msg string) {
	fmt.Fprintln(t.w, t.styles.errText.Render("✗ "+msg))
}

// Reply prints the agent's answer.
func (t *Terminal) Reply(text string) {
	fmt.Fprintln(t.w, t.styles.reply.Width(t.width).Render(text))
}

// Artifacts lists saved images and files and any dropped events.
func (t *Terminal) Artifacts(res trace.Result) {
	for _, img := range res.Images {
		fmt.Fprintln(t.w, t.styles.dim.Render("image: "+img))
	}
	for _, f := range res.Files {
		fmt.Fprintln(t.w, t.styles.dim.Render("file: "+f))
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(t.w, t.styles.dim.Render(fmt.Sprintf("skipped event %d: %s", d.Index, d.Message)))
	}
	for _, shape := range res.Unrecognized {
		fmt.Fprintln(t.w, t.styles.dim.Render("unrecognised event: "+shape))
	}
}

// Result prints a complete interpretation: every trace step, warnings, the
// final text and the artifacts.
func (t *Terminal) Result(res trace.Result) {
	for _, e := range res.Traces {
		t.Entry(e)
	}
	for _, w := range res.Warnings {
		t.Warning(w)
	}
	if res.Text != "" {
		t.Reply(res.Text)
	}
	t.Artifacts(res)
}

// Event prints a live chat event.
func (t *Terminal) Event(ev agent.Event) {
	switch ev.Type {
	case agent.EventTypeUpload:
		fmt.Fprintln(t.w, t.styles.dim.Render("uploaded: "+ev.Content))
	case agent.EventTypeTrace:
		if ev.Entry != nil {
			t.Entry(*ev.Entry)
		}
	case agent.EventTypeWarning:
		t.Warning(ev.Content)
	case agent.EventTypeReply:
		t.Reply(ev.Content)
	case agent.EventTypeError:
		t.Error(ev.Content)
	}
}
