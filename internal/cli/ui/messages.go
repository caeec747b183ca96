package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelSuccess
)

// Message is a one-line status with optional follow-up hints
type Message struct {
	Level   Level
	Text    string
	Hints   []string
	NoColor bool
}

// Write prints m followed by its hints, each on an indented arrow line
func (m Message) Write(w io.Writer) {
	var header *color.Color
	var symbol string
	switch m.Level {
	case LevelError:
		header, symbol = color.New(color.FgRed, color.Bold), "✗"
	case LevelWarning:
		header, symbol = color.New(color.FgYellow, color.Bold), "!"
	case LevelSuccess:
		header, symbol = color.New(color.FgGreen, color.Bold), "✓"
	default:
		header, symbol = color.New(color.FgCyan), "•"
	}
	hint := color.New(color.FgHiBlack)
	if m.NoColor {
		header.DisableColor()
		hint.DisableColor()
	}

	header.Fprintf(w, "%s %s\n", symbol, m.Text)
	for _, h := range m.Hints {
		hint.Fprintf(w, "  → %s\n", h)
	}
}

// Successf prints a success line
func Successf(w io.Writer, format string, args ...any) {
	Message{Level: LevelSuccess, Text: fmt.Sprintf(format, args...)}.Write(w)
}

// Infof prints an informational line
func Infof(w io.Writer, format string, args ...any) {
	Message{Level: LevelInfo, Text: fmt.Sprintf(format, args...)}.Write(w)
}
