package tabs

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loadedMsg string

func loader(id string, calls *[]string) Handler {
	return func() tea.Cmd {
		*calls = append(*calls, id)
		return func() tea.Msg { return loadedMsg(id) }
	}
}

func TestRegistryNavigation(t *testing.T) {
	var calls []string
	r := New().MustRegister(
		Tab{ID: "upload", Title: "Upload"},
		Tab{ID: "test", Title: "Test", OnEnter: loader("test", &calls)},
		Tab{ID: "export", Title: "Export", OnEnter: loader("export", &calls)},
	)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"Upload", "Test", "Export"}, r.Titles())
	assert.Equal(t, "upload", r.ActiveID())

	cmd := r.Next()
	require.NotNil(t, cmd)
	assert.Equal(t, loadedMsg("test"), cmd())
	assert.Equal(t, 1, r.Index())

	r.Next()
	assert.Nil(t, r.Next(), "upload has no entry handler")
	assert.Equal(t, "upload", r.ActiveID())

	r.Prev()
	assert.Equal(t, "export", r.ActiveID())
	assert.Equal(t, []string{"test", "export", "export"}, calls)
}

func TestRegistryActivate(t *testing.T) {
	var calls []string
	r := New().MustRegister(Tab{ID: "a"}, Tab{ID: "b", OnEnter: loader("b", &calls)})

	cmd, err := r.Activate("b")
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"b"}, calls)

	tab, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, "b", tab.Title, "title defaults to the id")

	_, err = r.Activate("missing")
	assert.ErrorIs(t, err, ErrUnknownTab)
	assert.Equal(t, "b", r.ActiveID())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Tab{ID: "logs"}))
	assert.ErrorIs(t, r.Register(Tab{ID: "logs"}), ErrDuplicateTab)
	assert.Error(t, r.Register(Tab{}))
	assert.Panics(t, func() { r.MustRegister(Tab{ID: "logs"}) })
}

func TestEmptyRegistry(t *testing.T) {
	r := New()
	assert.Nil(t, r.Next())
	assert.Nil(t, r.Prev())
	_, ok := r.Active()
	assert.False(t, ok)
	assert.Empty(t, r.Titles())
}
