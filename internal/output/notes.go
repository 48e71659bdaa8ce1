package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	defaultNotesWidth = 80
	minNotesWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultNotesWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}

// RenderNotes renders markdown job notes with terminal-aware wrapping. Notes
// that fail to render come back verbatim so evidence is never hidden.
func RenderNotes(text string) string {
	rendered, err := renderMarkdown(text, TerminalWidth(defaultNotesWidth))
	if err != nil {
		return text
	}
	return rendered
}

func renderMarkdown(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minNotesWidth {
		width = minNotesWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(rendered, "\n"), nil
}
