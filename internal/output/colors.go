package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Label     *color.Color
	Value     *color.Color
	Phase     *color.Color
	Latency   *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Phase:     color.New(color.FgMagenta),
		Latency:   color.New(color.FgBlue),
		Success:   color.New(color.FgGreen, color.Bold),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed, color.Bold),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgCyan, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForcedColorScheme returns the default scheme with colors on even when the
// writer is not a terminal.
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Label, s.Value, s.Phase, s.Latency,
		s.Success, s.Warn, s.Error, s.Dim, s.Highlight,
	}
}

// rateColor picks a color for a failure rate in 0..1.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Error
	case rate > 0.01:
		return s.Warn
	default:
		return s.Success
	}
}

// SuccessIcon returns a checkmark symbol with appropriate color
func (s *ColorScheme) SuccessIcon() string {
	return s.Success.Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func (s *ColorScheme) ErrorIcon() string {
	return s.Error.Sprint("✗")
}
