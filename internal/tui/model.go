// Package tui renders the active notifications in a terminal dashboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/rickgao/tradeline/internal/auth"
	"github.com/rickgao/tradeline/internal/connection"
	"github.com/rickgao/tradeline/internal/notify"
)

// refreshInterval drives TTL countdowns and the header.
const refreshInterval = 250 * time.Millisecond

// Source is what the dashboard reads from the pipeline.
type Source interface {
	ActiveNotifications() []notify.Notification
	WatchNotifications(fn func(notify.Change)) func()
	Dismiss(id uuid.UUID) bool
	DismissAll() int
	Reconnect() error
	ChannelState() connection.State
	Identity() auth.Identity
}

// changeMsg carries one change from the notification center.
type changeMsg struct {
	change notify.Change
}

// tickMsg is sent periodically to refresh data.
type tickMsg time.Time

// Model is the dashboard model.
type Model struct {
	src  Source
	bell io.Writer
	now  func() time.Time

	changes chan notify.Change
	unwatch func()

	active   []notify.Notification
	identity auth.Identity
	channel  connection.State
	selected int
	notice   string // last reconnect failure

	help   help.Model
	width  int
	height int
}

// NewModel creates a dashboard over src. Sound notifications ring the
// terminal bell on bell; a nil bell disables it.
func NewModel(src Source, bell io.Writer) *Model {
	m := &Model{
		src:     src,
		bell:    bell,
		now:     time.Now,
		changes: make(chan notify.Change, 64),
		help:    help.New(),
	}
	// Changes are only hints; the tick refresh catches anything dropped here.
	m.unwatch = src.WatchNotifications(func(ch notify.Change) {
		select {
		case m.changes <- ch:
		default:
		}
	})
	m.refresh()
	return m
}

// Close stops watching the notification center.
func (m *Model) Close() {
	m.unwatch()
}

// Init starts listening for changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listenChanges(), m.tick())
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.active)-1 {
				m.selected++
			}
		case key.Matches(msg, keys.Dismiss):
			if m.selected < len(m.active) {
				m.src.Dismiss(m.active[m.selected].ID)
				m.refresh()
			}
		case key.Matches(msg, keys.DismissAll):
			m.src.DismissAll()
			m.refresh()
		case key.Matches(msg, keys.Reconnect):
			m.notice = ""
			if err := m.src.Reconnect(); err != nil {
				m.notice = "reconnect: " + err.Error()
			}
			m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case changeMsg:
		if msg.change.Type == notify.Added && msg.change.Notification.Sound {
			cmds = append(cmds, m.ring())
		}
		m.refresh()
		cmds = append(cmds, m.listenChanges())

	case tickMsg:
		m.refresh()
		cmds = append(cmds, m.tick())
	}

	return m, tea.Batch(cmds...)
}

// View renders the UI.
func (m *Model) View() string {
	header := m.renderHeader()

	var list strings.Builder
	if len(m.active) == 0 {
		list.WriteString(EmptyStyle.Render("No notifications"))
	}
	now := m.now()
	for i, n := range m.active {
		line := m.renderNotification(n, now)
		if i == m.selected {
			line = SelectedRowStyle.Render(line)
		}
		list.WriteString(line)
		if i < len(m.active)-1 {
			list.WriteString("\n")
		}
	}

	panel := PanelStyle
	if m.width > 2 {
		panel = panel.Width(m.width - 2)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		panel.Render(list.String()),
		StatusBarStyle.Render(m.help.View(keys)),
	)
}

func (m *Model) renderHeader() string {
	user := "signed out"
	if m.identity.User != nil {
		user = fmt.Sprintf("%s (%s)", m.identity.User.DisplayName(), m.identity.Source)
	}
	open := m.channel.Phase == connection.PhaseOpen

	parts := []string{
		TitleStyle.Render("tradeline"),
		HeaderLabelStyle.Render(" user: "),
		HeaderValueStyle.Render(user),
		HeaderLabelStyle.Render("  channel: "),
		ChannelStyle(open).Render(m.channel.String()),
		HeaderLabelStyle.Render("  active: "),
		HeaderValueStyle.Render(fmt.Sprint(len(m.active))),
	}
	if m.notice != "" {
		parts = append(parts, NoticeStyle.Render("  "+m.notice))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m *Model) renderNotification(n notify.Notification, now time.Time) string {
	left := n.ExpiresAt().Sub(now).Round(time.Second)
	if left < 0 {
		left = 0
	}

	badge := KindStyle(n.Kind).Render(fmt.Sprintf("%-7s", strings.ToUpper(string(n.Kind))))
	title := KindStyle(n.Kind).Render(n.Title)

	return fmt.Sprintf("%s %s %s %s  %s",
		TimeStyle.Render(n.CreatedAt.Format("15:04:05")),
		badge,
		title,
		MessageStyle.Render(n.Message),
		TimeStyle.Render(left.String()),
	)
}

// refresh re-reads the pipeline state.
func (m *Model) refresh() {
	m.active = m.src.ActiveNotifications()
	m.identity = m.src.Identity()
	m.channel = m.src.ChannelState()
	if m.selected >= len(m.active) {
		m.selected = max(len(m.active)-1, 0)
	}
}

func (m *Model) ring() tea.Cmd {
	return func() tea.Msg {
		if m.bell != nil {
			m.bell.Write([]byte("\a"))
		}
		return nil
	}
}

func (m *Model) listenChanges() tea.Cmd {
	return func() tea.Msg {
		return changeMsg{change: <-m.changes}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, src Source, bell io.Writer) error {
	m := NewModel(src, bell)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
