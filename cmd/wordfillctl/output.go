package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ANSI escape codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
)

// palette is empty when w is not a terminal or NO_COLOR is set.
type palette struct {
	Reset, Bold, Dim, Green, Yellow, Cyan, Red string
}

func paletteFor(w io.Writer) palette {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(f.Fd())) {
		return palette{}
	}
	return palette{
		Reset:  colorReset,
		Bold:   colorBold,
		Dim:    colorDim,
		Green:  colorGreen,
		Yellow: colorYellow,
		Cyan:   colorCyan,
		Red:    colorRed,
	}
}

func printError(w io.Writer, msg string) {
	c := paletteFor(w)
	fmt.Fprintf(w, "%s%sError%s: %s\n", c.Bold, c.Red, c.Reset, msg)
}

func printSection(w io.Writer, title string) {
	c := paletteFor(w)
	fmt.Fprintf(w, "\n%s%s%s\n", c.Bold, title, c.Reset)
}

// printField prints one aligned "label value" line.
func printField(w io.Writer, label string, format string, args ...any) {
	c := paletteFor(w)
	fmt.Fprintf(w, "  %s%-14s%s %s\n", c.Dim, label, c.Reset, fmt.Sprintf(format, args...))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(b int) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := int64(b) / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
