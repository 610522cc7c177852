package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rickgao/tradeline/internal/notify"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7C3AED") // Purple

	SuccessColor = lipgloss.Color("#10B981") // Green
	InfoColor    = lipgloss.Color("#3B82F6") // Blue
	WarningColor = lipgloss.Color("#F59E0B") // Amber
	ErrorColor   = lipgloss.Color("#EF4444") // Red

	BorderColor        = lipgloss.Color("#374151")
	TextColor          = lipgloss.Color("#F9FAFB")
	TextSecondaryColor = lipgloss.Color("#9CA3AF")
	TextMutedColor     = lipgloss.Color("#6B7280")
)

var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	HeaderLabelStyle = lipgloss.NewStyle().
				Foreground(TextSecondaryColor)

	HeaderValueStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(TextColor)

	MessageStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	TimeStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor)

	EmptyStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor)

	SelectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#374151"))

	StatusBarStyle = lipgloss.NewStyle().
				Foreground(TextSecondaryColor).
				Padding(0, 1)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)
)

// kindColors maps notification kinds to their accent color.
var kindColors = map[notify.Kind]lipgloss.Color{
	notify.KindSuccess: SuccessColor,
	notify.KindInfo:    InfoColor,
	notify.KindWarning: WarningColor,
	notify.KindError:   ErrorColor,
}

// KindStyle returns the badge style for a notification kind.
func KindStyle(k notify.Kind) lipgloss.Style {
	c, ok := kindColors[k]
	if !ok {
		c = InfoColor
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

// ChannelStyle colors the channel phase.
func ChannelStyle(open bool) lipgloss.Style {
	if open {
		return lipgloss.NewStyle().Bold(true).Foreground(SuccessColor)
	}
	return lipgloss.NewStyle().Bold(true).Foreground(WarningColor)
}
