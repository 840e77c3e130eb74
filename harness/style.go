package harness

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorBanner  = lipgloss.Color("#7C3AED")
	colorFailure = lipgloss.Color("#EF4444")
	colorDone    = lipgloss.Color("#10B981")
)

// Styles renders the dispatcher's own lines. The zero value is plain text.
type Styles struct {
	enabled bool
	banner  lipgloss.Style
	failure lipgloss.Style
	done    lipgloss.Style
}

// ColorStyles returns styles for a terminal.
func ColorStyles() Styles {
	return Styles{
		enabled: true,
		banner:  lipgloss.NewStyle().Bold(true).Foreground(colorBanner),
		failure: lipgloss.NewStyle().Bold(true).Foreground(colorFailure),
		done:    lipgloss.NewStyle().Foreground(colorDone),
	}
}

// PlainStyles leaves text untouched.
func PlainStyles() Styles {
	return Styles{}
}

// StylesFor picks ColorStyles when w is a terminal.
func StylesFor(w io.Writer) Styles {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return ColorStyles()
	}
	return PlainStyles()
}

func (s Styles) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

// RenderBanner styles a scenario banner.
func (s Styles) RenderBanner(text string) string { return s.render(s.banner, text) }

// RenderFailure styles a failure summary.
func (s Styles) RenderFailure(text string) string { return s.render(s.failure, text) }

// RenderDone styles the closing line.
func (s Styles) RenderDone(text string) string { return s.render(s.done, text) }
