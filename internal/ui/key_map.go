package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
//
// Prompt fields accept free text, so single-letter bindings only apply outside [PromptView].
type keyMap struct {
	next   key.Binding
	prev   key.Binding
	submit key.Binding
	back   key.Binding
	yes    key.Binding
	no     key.Binding
	close  key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab/↓", "next")),
		prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab/↑", "previous")),
		submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "accept")),
		back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "start")),
		no:     key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "edit")),
		close:  key.NewBinding(key.WithKeys("enter", "q"), key.WithHelp("enter", "close")),
		quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.next, k.prev, k.submit},
		{k.back, k.yes, k.no},
		{k.close, k.quit},
	}
}
