// Package tabs maps tab identifiers to the commands run when a tab is shown.
package tabs

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	ErrUnknownTab   = errors.New("unknown tab")
	ErrDuplicateTab = errors.New("duplicate tab")
)

// Handler loads whatever a tab needs on entry. It may return nil.
type Handler func() tea.Cmd

type Tab struct {
	ID      string
	Title   string
	OnEnter Handler
}

// Registry keeps tabs in registration order with one of them active.
type Registry struct {
	tabs   []Tab
	index  map[string]int
	active int
}

func New() *Registry {
	return &Registry{index: map[string]int{}}
}

func (r *Registry) Register(t Tab) error {
	if t.ID == "" {
		return fmt.Errorf("register tab: empty id")
	}
	if _, ok := r.index[t.ID]; ok {
		return fmt.Errorf("register tab %q: %w", t.ID, ErrDuplicateTab)
	}
	if t.Title == "" {
		t.Title = t.ID
	}
	r.index[t.ID] = len(r.tabs)
	r.tabs = append(r.tabs, t)
	return nil
}

// MustRegister is Register for static tab tables.
func (r *Registry) MustRegister(ts ...Tab) *Registry {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Activate makes id the active tab and returns its entry command.
func (r *Registry) Activate(id string) (tea.Cmd, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("activate %q: %w", id, ErrUnknownTab)
	}
	return r.enter(i), nil
}

func (r *Registry) Next() tea.Cmd {
	if len(r.tabs) == 0 {
		return nil
	}
	return r.enter((r.active + 1) % len(r.tabs))
}

func (r *Registry) Prev() tea.Cmd {
	if len(r.tabs) == 0 {
		return nil
	}
	return r.enter((r.active - 1 + len(r.tabs)) % len(r.tabs))
}

func (r *Registry) enter(i int) tea.Cmd {
	r.active = i
	if h := r.tabs[i].OnEnter; h != nil {
		return h()
	}
	return nil
}

// Active returns the active tab; ok is false for an empty registry.
func (r *Registry) Active() (Tab, bool) {
	if len(r.tabs) == 0 {
		return Tab{}, false
	}
	return r.tabs[r.active], true
}

// ActiveID is the active tab's id, or "" when nothing is registered.
func (r *Registry) ActiveID() string {
	t, _ := r.Active()
	return t.ID
}

func (r *Registry) Index() int { return r.active }

func (r *Registry) Len() int { return len(r.tabs) }

func (r *Registry) Titles() []string {
	out := make([]string, len(r.tabs))
	for i, t := range r.tabs {
		out[i] = t.Title
	}
	return out
}
