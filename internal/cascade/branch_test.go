package cascade

import (
	"testing"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/branchsearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchAutocomplete_KeyboardSelectFillsBothFields(t *testing.T) {
	fb := newFakeBackend()
	fb.branches = []backend.Branch{{Name: "Gangnam", Code: "G01"}, {Name: "Gangseo", Code: "G02"}}
	c, rec := newTestController(t, fb)

	require.NoError(t, c.OnBranchInput(0, "Gang"))
	c.Wait()
	u, ok := rec.last(UpdateSuggestions, 0)
	require.True(t, ok)
	assert.True(t, u.Suggestions.Visible)
	assert.Len(t, u.Suggestions.Items, 2)

	require.NoError(t, c.BranchKey(0, branchsearch.KeyArrowDown))
	require.NoError(t, c.BranchKey(0, branchsearch.KeyArrowDown))
	require.NoError(t, c.BranchKey(0, branchsearch.KeyEnter))

	e := c.Snapshot().Entries[0]
	assert.Equal(t, "Gangseo", e.Branch)
	assert.Equal(t, "G02", e.ShopCode)
	assert.False(t, e.Suggestions.Visible)
	b, ok := rec.last(UpdateBranch, 0)
	require.True(t, ok)
	assert.Equal(t, &backend.Branch{Name: "Gangseo", Code: "G02"}, b.Branch)
}

func TestBranchAutocomplete_PointerSelect(t *testing.T) {
	fb := newFakeBackend()
	fb.branches = []backend.Branch{{Name: "Gangnam", Code: "G01"}}
	c, _ := newTestController(t, fb)

	require.NoError(t, c.OnBranchInput(0, "G"))
	c.Wait()
	require.NoError(t, c.SelectBranch(0, 0))
	assert.ErrorIs(t, c.SelectBranch(0, 0), ErrInvalidOption)

	e := c.Snapshot().Entries[0]
	assert.Equal(t, "Gangnam", e.Branch)
	assert.Equal(t, "G01", e.ShopCode)
}

func TestBranchAutocomplete_BlankInputHides(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)

	require.NoError(t, c.OnBranchInput(0, "   "))
	c.Wait()
	assert.Equal(t, 0, fb.callCount("branches:"))
	u, ok := rec.last(UpdateSuggestions, 0)
	require.True(t, ok)
	assert.False(t, u.Suggestions.Visible)
}

func TestBranchAutocomplete_EmptyResultShowsHint(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)

	require.NoError(t, c.OnBranchInput(0, "Zz"))
	c.Wait()
	s := c.Snapshot().Entries[0].Suggestions
	assert.True(t, s.Visible)
	assert.Equal(t, branchsearch.NoMatchesMessage, s.Message)

	require.NoError(t, c.DismissSuggestions(0))
	assert.False(t, c.Snapshot().Entries[0].Suggestions.Visible)
}

func TestShopCodeLookup(t *testing.T) {
	fb := newFakeBackend()
	fb.byCode["G01"] = backend.Branch{Name: "Gangnam", Code: "G01"}
	c, _ := newTestController(t, fb)

	require.NoError(t, c.OnShopCodeInput(0, "G"))
	c.Wait()
	assert.Equal(t, 0, fb.callCount("code:G"))

	require.NoError(t, c.OnShopCodeInput(0, "G01"))
	c.Wait()
	e := c.Snapshot().Entries[0]
	assert.Equal(t, "Gangnam", e.Branch)
	assert.Equal(t, "G01", e.ShopCode)

	require.NoError(t, c.OnShopCodeInput(0, "X9"))
	c.Wait()
	e = c.Snapshot().Entries[0]
	assert.Equal(t, "Gangnam", e.Branch)
	assert.Equal(t, "X9", e.ShopCode)
}
