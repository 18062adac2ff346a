package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start    key.Binding
	Stop     key.Binding
	Quit     key.Binding
	TabNext  key.Binding
	TabPrev  key.Binding
	SubNext  key.Binding
	SubPrev  key.Binding
	Up       key.Binding
	Down     key.Binding
	Edit     key.Binding
	Apply    key.Binding
	Cancel   key.Binding
	Cycle    key.Binding
	Refresh  key.Binding
	ClearLog key.Binding
	Download key.Binding
	Validate key.Binding
	Open     key.Binding
	Write    key.Binding
	Help     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Start:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start/send")),
		Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		TabNext:  key.NewBinding(key.WithKeys("tab", "l"), key.WithHelp("tab/l", "next tab")),
		TabPrev:  key.NewBinding(key.WithKeys("shift+tab", "h"), key.WithHelp("shift+tab/h", "prev tab")),
		SubNext:  key.NewBinding(key.WithKeys("right"), key.WithHelp("right", "next sub-tab")),
		SubPrev:  key.NewBinding(key.WithKeys("left"), key.WithHelp("left", "prev sub-tab")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "down")),
		Edit:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		Apply:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit/apply")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel edit")),
		Cycle:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "cycle choice")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		ClearLog: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear logs")),
		Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Validate: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "validate")),
		Open:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open metadata.csv")),
		Write:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save + upload")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.TabNext, k.Edit, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.Download, k.Refresh, k.Quit},
		{k.TabNext, k.TabPrev, k.SubNext, k.SubPrev, k.Up, k.Down},
		{k.Edit, k.Apply, k.Cancel, k.Cycle},
		{k.Validate, k.Open, k.Write, k.ClearLog, k.Help},
	}
}
