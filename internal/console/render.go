package console

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns BOT text into terminal output.
type Renderer func(text string) (string, error)

// Plain prints text as-is.
func Plain(text string) (string, error) { return text, nil }

// Markdown renders BOT replies with glamour, detecting a light or dark terminal.
// It falls back to Plain when the renderer cannot be built.
func Markdown(wordWrap int) Renderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return Plain
	}
	return func(text string) (string, error) {
		out, err := r.Render(text)
		if err != nil {
			return text, err
		}
		return strings.Trim(out, "\n"), nil
	}
}
