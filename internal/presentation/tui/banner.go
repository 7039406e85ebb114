package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the toolbroker banner followed by the version line.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{" _              _ _               _", "#818cf8"},
		{"| |_ ___   ___ | | |__  _ __ ___ | | _____ _ __", "#a78bfa"},
		{"| __/ _ \\ / _ \\| | '_ \\| '__/ _ \\| |/ / _ \\ '__|", "#c084fc"},
		{"| || (_) | (_) | | |_) | | | (_) |   <  __/ |", "#e879f9"},
		{" \\__\\___/ \\___/|_|_.__/|_|  \\___/|_|\\_\\___|_|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
