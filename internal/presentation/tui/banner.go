package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the rentsync banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"                  _                         ", "#38bdf8"},
		{"  _ __ ___ _ __ | |_ ___ _   _ _ __   ___  ", "#22d3ee"},
		{" | '__/ _ \\ '_ \\| __/ __| | | | '_ \\ / __| ", "#2dd4bf"},
		{" | | |  __/ | | | |_\\__ \\ |_| | | | | (__  ", "#34d399"},
		{" |_|  \\___|_| |_|\\__|___/\\__, |_| |_|\\___| ", "#4ade80"},
		{"                         |___/              ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
