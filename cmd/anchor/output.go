package main

import (
	"fmt"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

type priorityArea struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
}

// formatAreas renders one score bar per area in the order given.
func formatAreas(areas []priorityArea) string {
	width := 0
	for _, a := range areas {
		width = max(width, len(a.Name))
	}
	var sb strings.Builder
	for _, a := range areas {
		fmt.Fprintf(&sb, "  %-*s %s %2d/10\n", width, a.Name, colorize(scoreColor(a.Score), scoreBar(a.Score)), a.Score)
		if a.Explanation != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", width, "", a.Explanation)
		}
	}
	return sb.String()
}

// scoreBar draws a ten-cell bar. Scores outside 0-10 are drawn clamped.
func scoreBar(score int) string {
	n := min(max(score, 0), 10)
	return strings.Repeat("█", n) + strings.Repeat("░", 10-n)
}

func scoreColor(score int) string {
	switch {
	case score >= 8:
		return colorRed
	case score >= 5:
		return colorYellow
	default:
		return colorGreen
	}
}
