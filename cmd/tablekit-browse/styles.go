package main

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

var (
	accentColor = lipgloss.Color("#89b4fa")
	bgColor     = lipgloss.Color("#1e1e2e")
	mutedColor  = lipgloss.Color("#6c7086")
	errorColor  = lipgloss.Color("#f38ba8")
	warnColor   = lipgloss.Color("#f9e2af")
	greenColor  = lipgloss.Color("#a6e3a1")

	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle      = lipgloss.NewStyle().Foreground(errorColor)
	warnStyle       = lipgloss.NewStyle().Foreground(warnColor).Italic(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(greenColor)
	facetTitleStyle = lipgloss.NewStyle().Bold(true)
	activeStyle     = lipgloss.NewStyle().Foreground(bgColor).Background(greenColor)
)

type keyMap struct {
	Search    key.Binding
	Blur      key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	Sort      key.Binding
	Direction key.Binding
	Facet     key.Binding
	Reset     key.Binding
	Refetch   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Blur:      key.NewBinding(key.WithKeys("enter", "esc"), key.WithHelp("enter", "done")),
	NextPage:  key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next page")),
	PrevPage:  key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "prev page")),
	Sort:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort column")),
	Direction: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "sort direction")),
	Facet: key.NewBinding(
		key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9/0", "facet filter/clear"),
	),
	Reset:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset")),
	Refetch: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refetch")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.NextPage, k.PrevPage, k.Sort, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Search, k.Blur, k.NextPage, k.PrevPage},
		{k.Sort, k.Direction, k.Facet},
		{k.Reset, k.Refetch, k.Help, k.Quit},
	}
}
