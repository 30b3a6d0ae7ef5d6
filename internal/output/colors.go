package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output.
type ColorScheme struct {
	Title  *color.Color
	Rule   *color.Color
	Label  *color.Color
	Value  *color.Color
	Phase  *color.Color
	Pass   *color.Color
	Warn   *color.Color
	Fail   *color.Color
	Dim    *color.Color
	Timing *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Title:  color.New(color.Bold),
		Rule:   color.New(color.FgCyan),
		Label:  color.New(color.Bold),
		Value:  color.New(color.FgCyan),
		Phase:  color.New(color.FgMagenta),
		Pass:   color.New(color.FgGreen),
		Warn:   color.New(color.FgYellow),
		Fail:   color.New(color.FgRed, color.Bold),
		Dim:    color.New(color.Faint),
		Timing: color.New(color.FgBlue),
	}
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range s.all() {
		c.DisableColor()
	}
	return s
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Label, s.Value, s.Phase, s.Pass, s.Warn, s.Fail, s.Dim, s.Timing}
}

// rate picks pass, warn or fail for an error-like fraction.
func (s *ColorScheme) rate(errorRate float64) *color.Color {
	switch {
	case errorRate > 0.05:
		return s.Fail
	case errorRate > 0.01:
		return s.Warn
	default:
		return s.Pass
	}
}

// Icon returns a check mark or a cross.
func (s *ColorScheme) Icon(passed bool) string {
	if passed {
		return s.Pass.Sprint("✓")
	}
	return s.Fail.Sprint("✗")
}
