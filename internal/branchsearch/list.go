// Package branchsearch holds the state of a branch autocomplete list.
package branchsearch

import (
	"strings"

	"github.com/phillip-england/popsuite/internal/backend"
)

const (
	MinSearchLength = 1
	MinCodeLength   = 2

	NoMatchesMessage = "No existing branches found. Enter branch name and shop code to create new."
)

const (
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
)

// List is a dismissible suggestion list with a keyboard highlight. The
// zero value is a hidden, empty list.
type List struct {
	items     []backend.Branch
	highlight int
	visible   bool
}

type State struct {
	Visible   bool             `json:"visible"`
	Items     []backend.Branch `json:"items"`
	Highlight int              `json:"highlight"`
	Message   string           `json:"message,omitempty"`
}

func ShouldSearch(term string) bool {
	return len([]rune(strings.TrimSpace(term))) >= MinSearchLength
}

func ShouldLookupCode(code string) bool {
	return len([]rune(strings.TrimSpace(code))) >= MinCodeLength
}

// Show replaces the suggestions and makes the list visible. An empty
// result is still shown so the no-match hint is displayed.
func (l *List) Show(items []backend.Branch) {
	l.items = append([]backend.Branch(nil), items...)
	l.highlight = -1
	l.visible = true
}

func (l *List) Hide() {
	l.visible = false
	l.highlight = -1
}

func (l *List) Visible() bool {
	return l.visible
}

// Highlighted reports the suggestion under the keyboard cursor.
func (l *List) Highlighted() (backend.Branch, bool) {
	if !l.visible || l.highlight < 0 || l.highlight >= len(l.items) {
		return backend.Branch{}, false
	}
	return l.items[l.highlight], true
}

// HandleKey applies one navigation key. It returns the chosen branch when
// the key selected one, in which case the list is hidden.
func (l *List) HandleKey(key string) (backend.Branch, bool) {
	switch key {
	case KeyArrowDown:
		if !l.visible {
			return backend.Branch{}, false
		}
		l.highlight = min(l.highlight+1, len(l.items)-1)
	case KeyArrowUp:
		if !l.visible {
			return backend.Branch{}, false
		}
		l.highlight = max(l.highlight-1, -1)
	case KeyEnter:
		branch, ok := l.Highlighted()
		if ok {
			l.Hide()
		}
		return branch, ok
	case KeyEscape:
		l.Hide()
	}
	return backend.Branch{}, false
}

// Select picks a suggestion by position, as a pointer click does.
func (l *List) Select(i int) (backend.Branch, bool) {
	if !l.visible || i < 0 || i >= len(l.items) {
		return backend.Branch{}, false
	}
	branch := l.items[i]
	l.Hide()
	return branch, true
}

func (l *List) State() State {
	s := State{
		Visible:   l.visible,
		Items:     append([]backend.Branch{}, l.items...),
		Highlight: l.highlight,
	}
	if l.visible && len(l.items) == 0 {
		s.Message = NoMatchesMessage
	}
	return s
}
