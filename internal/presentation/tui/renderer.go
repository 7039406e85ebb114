package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown using glamour.
// Output that is not a terminal gets the markdown unchanged.
func NewRenderer(w io.Writer) func(string) (string, error) {
	if !IsTerminal(w) {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	width := 100
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return r.Render
}

// StatusMarkdown renders tools as a markdown table, one row per tool.
func StatusMarkdown(tools []domain.ToolView, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Tools\n\n")
	if len(tools) == 0 {
		b.WriteString("_No tools registered._\n")
		return b.String()
	}

	b.WriteString("| Tool | Provider | State | Last seen | Description |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			t.Name,
			cell(t.OwnerID),
			state(t),
			lastSeen(t.LastSeen, now),
			cell(t.Description),
		)
	}
	return b.String()
}

func state(t domain.ToolView) string {
	switch {
	case t.Disabled:
		return "disabled"
	case t.Online:
		return "online"
	default:
		return "offline"
	}
}

func lastSeen(ts *time.Time, now time.Time) string {
	if ts == nil || ts.IsZero() {
		return "never"
	}
	return now.Sub(*ts).Truncate(time.Second).String() + " ago"
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if s == "" {
		return "-"
	}
	return s
}

// Summary is a one-line count of tools by state, coloured for the given profile.
func Summary(p termenv.Profile, tools []domain.ToolView) string {
	var online, offline, disabled int
	for _, t := range tools {
		switch state(t) {
		case "online":
			online++
		case "offline":
			offline++
		default:
			disabled++
		}
	}
	return fmt.Sprintf("%s  %s  %s",
		termenv.String(fmt.Sprintf("● %d online", online)).Foreground(p.Color("#22c55e")),
		termenv.String(fmt.Sprintf("○ %d offline", offline)).Foreground(p.Color("#ef4444")),
		termenv.String(fmt.Sprintf("◌ %d disabled", disabled)).Foreground(p.Color("#a1a1aa")),
	)
}
