package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	stepColor    = color.New(color.FgBlue)
	sectionColor = color.New(color.FgMagenta, color.Bold)
	keyColor     = color.New(color.FgYellow)
)

// Success displays a success message.
func Success(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	warningColor.Fprintf(os.Stdout, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Step displays a pipeline step.
func Step(format string, args ...interface{}) {
	stepColor.Fprintf(os.Stdout, "→ %s\n", fmt.Sprintf(format, args...))
}

// Debug displays a message only in verbose mode.
func Debug(format string, args ...interface{}) {
	if !verboseFlag {
		return
	}
	fmt.Fprintf(os.Stdout, "  %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func Section(title string) {
	fmt.Fprintln(os.Stdout)
	sectionColor.Fprintf(os.Stdout, "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(os.Stdout)
}

// KeyValue prints a key-value pair.
func KeyValue(key string, value interface{}) {
	keyColor.Fprintf(os.Stdout, "  %s: ", key)
	fmt.Fprintf(os.Stdout, "%v\n", value)
}

// Newline prints a newline.
func Newline() {
	fmt.Fprintln(os.Stdout)
}
