package headless

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Output renders streaming chunks to the console.
type Output struct {
	w io.Writer

	thinkingStyle lipgloss.Style
	errorStyle    lipgloss.Style
	statusStyle   lipgloss.Style
}

func NewOutput() *Output {
	return &Output{
		w: os.Stdout,

		// Thinking content stays visually subordinate to the answer.
		thinkingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6347")).
			Bold(true),

		statusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")),
	}
}

// Text prints answer content as-is, mid-stream.
func (o *Output) Text(s string) {
	fmt.Fprint(o.w, s)
}

// Thinking prints reasoning content in the dim style.
func (o *Output) Thinking(s string) {
	fmt.Fprint(o.w, o.thinkingStyle.Render(s))
}

// Error prints a surfaced generation failure.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.w, o.errorStyle.Render("error: "+msg))
}

// Status prints a transition marker such as a paused notice.
func (o *Output) Status(msg string) {
	fmt.Fprintln(o.w, o.statusStyle.Render(msg))
}

// Newline terminates the current stream line.
func (o *Output) Newline() {
	fmt.Fprintln(o.w)
}
