package main

import (
	"fmt"
	"os"
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

// itemLine renders one item status for terminal output.
func itemLine(emoji, name string, available bool, holders string) string {
	if available {
		return fmt.Sprintf("%s %s  %s", emoji, name, colorize(colorGreen, "available"))
	}
	return fmt.Sprintf("%s %s  %s", emoji, name, colorize(colorRed, "held by "+holders))
}

func eventLabel(kind string) string {
	switch kind {
	case "borrow":
		return colorize(colorCyan, "borrow  ")
	case "return":
		return colorize(colorGreen, "return  ")
	case "reminder":
		return colorize(colorYellow, "reminder")
	}
	return kind
}
