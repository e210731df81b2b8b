package cascade

import (
	"context"
	"errors"
	"strings"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/branchsearch"
	"github.com/sirupsen/logrus"
)

// OnBranchInput records typed branch text and, once there is enough of it,
// searches for matching branches in the background.
func (c *Controller) OnBranchInput(index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	e.branch = text
	e.branchGen++
	if !branchsearch.ShouldSearch(text) {
		e.suggest.Hide()
		c.publishSuggestionsLocked(e)
		return nil
	}

	term := strings.TrimSpace(text)
	gen := e.branchGen
	c.spawnLocked(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		branches, err := c.backend.SearchBranches(ctx, term)

		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[index]
		if c.closed || !ok || e.branchGen != gen {
			c.log.WithFields(logrus.Fields{"entry": index, "term": term}).Debug("stale branch suggestions dropped")
			return
		}
		if err != nil {
			c.log.WithFields(logrus.Fields{"entry": index, "term": term}).WithError(err).Warn("branch search failed")
			e.suggest.Hide()
			c.publishSuggestionsLocked(e)
			var apiErr *backend.APIError
			if errors.As(err, &apiErr) {
				c.publishLocked(Update{Kind: UpdateNotice, Entry: index, Notice: &Notice{Level: "error", Message: apiErr.Error()}})
			}
			return
		}
		e.suggest.Show(branches)
		c.publishSuggestionsLocked(e)
	})
	return nil
}

// OnShopCodeInput records a typed shop code. A code long enough to be
// looked up fills in the branch name when the backend knows it; an unknown
// code is not an error.
func (c *Controller) OnShopCodeInput(index int, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	e.shopCode = code
	e.codeGen++
	if !branchsearch.ShouldLookupCode(code) {
		return nil
	}

	lookup := strings.TrimSpace(code)
	gen := e.codeGen
	c.spawnLocked(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		branch, err := c.backend.BranchByCode(ctx, lookup)

		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[index]
		if c.closed || !ok || e.codeGen != gen {
			return
		}
		if err != nil {
			c.log.WithFields(logrus.Fields{"entry": index, "code": lookup}).WithError(err).Debug("shop code lookup found nothing")
			return
		}
		if branch.Name == "" {
			return
		}
		e.branch = branch.Name
		e.branchGen++
		c.publishLocked(Update{Kind: UpdateBranch, Entry: index, Branch: &backend.Branch{Name: e.branch, Code: e.shopCode}})
	})
	return nil
}

// BranchKey feeds a navigation key to the entry's suggestion list.
func (c *Controller) BranchKey(index int, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	if branch, ok := e.suggest.HandleKey(key); ok {
		c.fillBranchLocked(e, branch)
		return nil
	}
	c.publishSuggestionsLocked(e)
	return nil
}

// SelectBranch picks a suggestion by position.
func (c *Controller) SelectBranch(index, suggestion int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	branch, ok := e.suggest.Select(suggestion)
	if !ok {
		return ErrInvalidOption
	}
	c.fillBranchLocked(e, branch)
	return nil
}

func (c *Controller) DismissSuggestions(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	e.suggest.Hide()
	c.publishSuggestionsLocked(e)
	return nil
}

// fillBranchLocked sets name and code together and cancels pending
// lookups for both fields.
func (c *Controller) fillBranchLocked(e *entry, branch backend.Branch) {
	e.branch = branch.Name
	e.shopCode = branch.Code
	e.branchGen++
	e.codeGen++
	e.suggest.Hide()
	c.publishLocked(Update{Kind: UpdateBranch, Entry: e.index, Branch: &backend.Branch{Name: branch.Name, Code: branch.Code}})
	c.publishSuggestionsLocked(e)
}

func (c *Controller) publishSuggestionsLocked(e *entry) {
	state := e.suggest.State()
	c.publishLocked(Update{Kind: UpdateSuggestions, Entry: e.index, Suggestions: &state})
}
