package color

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Semantic palette with light and dark variants.
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#404040"}
)

// Styles used by the report renderer.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	HeaderStyle  = lipgloss.NewStyle().Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	InfoStyle    = lipgloss.NewStyle().Foreground(ColorInfo)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	BoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder).Padding(0, 1)
)

// Initialize sets the global background mode for lipgloss.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// Disable strips all colors from subsequent renders.
func Disable() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ShouldColor reports whether output written to w should carry ANSI colors.
// NO_COLOR always wins; otherwise only terminals get colors.
func ShouldColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Setup configures colors for output written to w.
func Setup(w io.Writer) {
	if !ShouldColor(w) {
		Disable()
		return
	}
	Initialize(lipgloss.HasDarkBackground())
}
