package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Statusf prints a progress or summary line for the operator. --quiet
// silences it. Output goes to stderr so --json stdout stays parseable.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet {
		return
	}

	w := cc.statusOut
	if w == nil {
		w = os.Stderr
	}

	fmt.Fprintf(w, format, args...)
}

// IEC units, the same ones chunk_size accepts.
var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
}

// formatSize renders a byte count such as an export total, e.g. "1.5 MiB".
func formatSize(bytes int64) string {
	for _, u := range sizeUnits {
		if bytes >= u.bytes {
			return fmt.Sprintf("%.1f %s", float64(bytes)/float64(u.bytes), u.suffix)
		}
	}

	return fmt.Sprintf("%d B", bytes)
}

// formatTime renders a run timestamp in local time relative to now: the
// clock for today, month and day this year, the full date otherwise.
func formatTime(t, now time.Time) string {
	t = t.In(now.Location())

	switch {
	case t.Year() == now.Year() && t.YearDay() == now.YearDay():
		return t.Format("15:04:05")
	case t.Year() == now.Year():
		return t.Format("Jan _2 15:04")
	default:
		return t.Format("Jan _2  2006")
	}
}

// printTable writes left-aligned columns separated by two spaces. Widths
// are counted in runes so accented file names line up.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len([]rune(cell)))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder

	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}

		b.WriteString(cell)

		// No trailing padding after the last column.
		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(cell))))
		}
	}

	fmt.Fprintln(w, b.String())
}
