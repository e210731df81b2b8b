package cascade

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"testing"
	"time"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_EndToEnd(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)

	snap := c.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, []string{"OLED", "QLED"}, snap.Categories)

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()
	u, ok := rec.last(UpdateModels, 0)
	require.True(t, ok)
	assert.True(t, u.Enabled)
	assert.Equal(t, []string{"S95F", "S90F", "S85F"}, u.Options)

	require.NoError(t, c.OnModelChanged(0, "S95F"))
	c.Wait()

	e := c.Snapshot().Entries[0]
	assert.Equal(t, Sections{DisplayType: true, PopMaterials: true, Images: true}, e.Sections)
	assert.Equal(t, []string{"Wall", "Stand"}, e.DisplayTypes)
	require.Len(t, e.Checklist.Items, 2)
	assert.Equal(t, "Header", e.Checklist.Items[0].Value)
	assert.Equal(t, "pop_0_1", e.Checklist.Items[1].ID)
	assert.Equal(t, 1, fb.callCount("display_types:OLED"))
	assert.Equal(t, 1, fb.callCount("pop_materials:S95F"))
}

func TestController_LastCategoryWinsRegardlessOfArrival(t *testing.T) {
	for _, firstRelease := range []string{"models:OLED", "models:QLED"} {
		t.Run(firstRelease, func(t *testing.T) {
			fb := newFakeBackend()
			c, _ := newTestController(t, fb)
			gates := map[string]chan struct{}{
				"models:OLED": fb.gate("models:OLED"),
				"models:QLED": fb.gate("models:QLED"),
			}

			require.NoError(t, c.OnCategoryChanged(0, "OLED"))
			require.NoError(t, c.OnCategoryChanged(0, "QLED"))

			close(gates[firstRelease])
			time.Sleep(10 * time.Millisecond)
			for key, ch := range gates {
				if key != firstRelease {
					close(ch)
				}
			}
			c.Wait()

			e := c.Snapshot().Entries[0]
			assert.Equal(t, "QLED", e.Category)
			assert.Equal(t, []string{"Q8F", "Q7F"}, e.Models)
		})
	}
}

func TestController_SameCategoryTwiceKeepsLatestGeneration(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)
	gate := fb.gate("models:OLED")

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	close(gate)
	c.Wait()

	models := 0
	rec.mu.Lock()
	for _, u := range rec.updates {
		if u.Kind == UpdateModels && u.Entry == 0 && u.Enabled {
			models++
		}
	}
	rec.mu.Unlock()
	assert.Equal(t, 1, models)
	assert.Equal(t, []string{"S95F", "S90F", "S85F"}, c.Snapshot().Entries[0].Models)
}

func TestController_CategorySequencesLeaveConsistentState(t *testing.T) {
	sequences := [][]string{
		{"OLED", ""},
		{"OLED", "QLED", ""},
		{"", "QLED"},
		{"QLED", "OLED", "QLED"},
	}
	for _, seq := range sequences {
		fb := newFakeBackend()
		c, _ := newTestController(t, fb)
		for _, category := range seq {
			require.NoError(t, c.OnCategoryChanged(0, category))
			c.Wait()
			if category != "" {
				models := c.Snapshot().Entries[0].Models
				require.NoError(t, c.OnModelChanged(0, models[0]))
				c.Wait()
			}
		}
		c.Wait()

		e := c.Snapshot().Entries[0]
		final := seq[len(seq)-1]
		assert.Equal(t, final, e.Category)
		if final == "" {
			assert.Empty(t, e.Model, "%v", seq)
			assert.Empty(t, e.Models, "%v", seq)
			assert.Empty(t, e.DisplayTypes, "%v", seq)
			assert.Empty(t, e.PopMaterials, "%v", seq)
			assert.Empty(t, e.Attachments, "%v", seq)
			assert.Equal(t, Sections{}, e.Sections, "%v", seq)
		}
	}
}

func TestController_CategoryChangeClearsDownstream(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()
	require.NoError(t, c.OnModelChanged(0, "S95F"))
	c.Wait()
	require.NoError(t, c.SelectDisplayType(0, "Wall"))
	require.NoError(t, c.SetPopMaterial(0, "Header", true))
	_, err := c.AttachImages(0, []File{{Name: "a.jpg", ContentType: "image/jpeg", Size: 100}})
	require.NoError(t, err)

	require.NoError(t, c.OnCategoryChanged(0, ""))
	c.Wait()

	e := c.Snapshot().Entries[0]
	assert.Empty(t, e.Model)
	assert.Empty(t, e.DisplayType)
	assert.Empty(t, e.Selected)
	assert.Empty(t, e.Attachments)
	assert.Equal(t, Sections{}, e.Sections)
	u, ok := rec.last(UpdateModels, 0)
	require.True(t, ok)
	assert.False(t, u.Enabled)
	assert.Equal(t, 1, fb.callCount("models:OLED"))
}

func TestController_RejectsUnknownValues(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)

	assert.ErrorIs(t, c.OnCategoryChanged(0, "Plasma"), ErrInvalidOption)
	assert.ErrorIs(t, c.OnModelChanged(0, "S95F"), ErrNoCategory)
	assert.ErrorIs(t, c.OnCategoryChanged(7, "OLED"), ErrUnknownEntry)

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()
	assert.ErrorIs(t, c.OnModelChanged(0, "Q8F"), ErrInvalidOption)
	assert.ErrorIs(t, c.SelectDisplayType(0, "Wall"), ErrNoModel)

	require.NoError(t, c.OnModelChanged(0, "S95F"))
	c.Wait()
	assert.ErrorIs(t, c.SelectDisplayType(0, "Endcap"), ErrInvalidOption)
	assert.ErrorIs(t, c.SetPopMaterial(0, "Banner", true), ErrInvalidOption)
}

func TestController_ModelChangeClearsMaterialSelection(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)
	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()
	require.NoError(t, c.OnModelChanged(0, "S95F"))
	c.Wait()
	require.NoError(t, c.SetPopMaterial(0, "Wobbler", true))
	assert.Equal(t, []string{"Wobbler"}, c.Snapshot().Entries[0].Selected)

	require.NoError(t, c.OnModelChanged(0, "S90F"))
	c.Wait()
	e := c.Snapshot().Entries[0]
	assert.Empty(t, e.Selected)
	assert.Empty(t, e.Checklist.Items)
	assert.Equal(t, NoMaterialsPlaceholder, e.Checklist.Placeholder)
	assert.ErrorIs(t, c.SetPopMaterial(0, "Wobbler", true), ErrInvalidOption)
}

func TestController_StaleMaterialsAfterModelChange(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)
	require.NoError(t, c.OnCategoryChanged(0, "QLED"))
	c.Wait()

	gate := fb.gate("pop_materials:Q8F")
	require.NoError(t, c.OnModelChanged(0, "Q8F"))
	require.NoError(t, c.OnModelChanged(0, "Q7F"))
	close(gate)
	c.Wait()

	e := c.Snapshot().Entries[0]
	assert.Equal(t, "Q7F", e.Model)
	assert.Equal(t, []string{"Banner"}, e.PopMaterials)
}

func TestController_ChecklistDeduplicatesMaterials(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)
	require.NoError(t, c.OnCategoryChanged(0, "QLED"))
	c.Wait()
	require.NoError(t, c.OnModelChanged(0, "Q8F"))
	c.Wait()

	u, ok := rec.last(UpdateChecklist, 0)
	require.True(t, ok)
	require.NotNil(t, u.Checklist)
	require.Len(t, u.Checklist.Items, 2)
	assert.Equal(t, "Shelf talker", u.Checklist.Items[0].Value)
	assert.Equal(t, "Price card", u.Checklist.Items[1].Value)
	assert.Empty(t, u.Checklist.Placeholder)
}

func TestController_FetchTimeoutLeavesFieldDisabled(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb, func(cfg *Config) { cfg.FetchTimeout = 20 * time.Millisecond })
	fb.gate("models:OLED")

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()

	u, ok := rec.last(UpdateModels, 0)
	require.True(t, ok)
	assert.False(t, u.Enabled)
	assert.Empty(t, c.Snapshot().Entries[0].Models)
}

func TestController_FailedFetchYieldsEmptySet(t *testing.T) {
	fb := newFakeBackend()
	fb.errs["models:OLED"] = &backend.APIError{Status: 500, Message: "db down"}
	c, _ := newTestController(t, fb)

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()
	assert.Empty(t, c.Snapshot().Entries[0].Models)
}

func TestController_CloseDropsLateResponses(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)
	gate := fb.gate("models:OLED")

	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Close()
	close(gate)

	u, ok := rec.last(UpdateModels, 0)
	require.True(t, ok)
	assert.False(t, u.Enabled)
	assert.ErrorIs(t, c.OnCategoryChanged(0, "QLED"), ErrClosed)
}

func TestController_EntryLifecycle(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)

	var lastErr *ValidationError
	require.ErrorAs(t, c.RemoveEntry(0), &lastErr)
	assert.ErrorIs(t, lastErr, ErrLastEntry)
	assert.Equal(t, LastEntryMessage, lastErr.Message)

	h1, err := c.AddEntry()
	require.NoError(t, err)
	h2, err := c.AddEntry()
	require.NoError(t, err)
	assert.Equal(t, 1, h1.Index())
	assert.Equal(t, 2, h2.Index())

	require.NoError(t, h1.Remove())
	h3, err := c.AddEntry()
	require.NoError(t, err)
	assert.Equal(t, 3, h3.Index())
	assert.Equal(t, []int{0, 2, 3}, c.Indices())

	require.NoError(t, h3.SetCategory("QLED"))
	c.Wait()
	assert.Empty(t, c.Snapshot().Entries[0].Models)
	assert.Equal(t, []string{"Q8F", "Q7F"}, c.Snapshot().Entries[2].Models)
}

func TestController_RemovedEntryDropsResponse(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)
	h, err := c.AddEntry()
	require.NoError(t, err)
	gate := fb.gate("models:OLED")

	require.NoError(t, h.SetCategory("OLED"))
	require.NoError(t, h.Remove())
	close(gate)
	c.Wait()

	_, err = c.Handle(h.Index())
	assert.ErrorIs(t, err, ErrUnknownEntry)
	assert.Len(t, c.Snapshot().Entries, 1)
}

func readyEntry(t *testing.T, c *Controller, h Handle) {
	t.Helper()
	require.NoError(t, h.BranchInput("Gangnam"))
	require.NoError(t, h.ShopCodeInput("G"))
	require.NoError(t, h.SetCategory("OLED"))
	c.Wait()
	require.NoError(t, h.SetModel("S95F"))
	c.Wait()
	require.NoError(t, h.SetDisplayType("Wall"))
}

func TestController_SubmitValidationBlocksNetwork(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)
	require.NoError(t, c.OnCategoryChanged(0, "OLED"))
	c.Wait()

	_, err := c.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RequiredFieldsMessage, verr.Message)
	assert.Contains(t, verr.Fields, "model_0")
	assert.Equal(t, 0, fb.submits)
}

func TestController_SubmitRefusesUnreadFile(t *testing.T) {
	fb := newFakeBackend()
	c, _ := newTestController(t, fb)
	h0, err := c.Handle(0)
	require.NoError(t, err)
	readyEntry(t, c, h0)
	_, err = h0.AttachImages([]File{{Name: "shelf.jpg", ContentType: "image/jpeg", Size: 2048}})
	require.NoError(t, err)

	_, err = c.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, `File "shelf.jpg" could not be read. Please attach it again.`, verr.Message)
	assert.Equal(t, []string{"images_0"}, verr.Fields)
	assert.Zero(t, fb.submits)
}

func TestController_SubmitEncodesAndResets(t *testing.T) {
	fb := newFakeBackend()
	c, rec := newTestController(t, fb)
	h0, err := c.Handle(0)
	require.NoError(t, err)
	readyEntry(t, c, h0)
	require.NoError(t, h0.SetPopMaterial("Wobbler", true))
	require.NoError(t, h0.SetPopMaterial("Header", true))
	png := pngBytes(t, 8, 4)
	_, err = h0.AttachImages([]File{{Name: "shelf.png", ContentType: "image/png", Data: png}})
	require.NoError(t, err)

	h1, err := c.AddEntry()
	require.NoError(t, err)
	readyEntry(t, c, h1)

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SubmitSuccessMessage, res.Message)
	require.Equal(t, 1, fb.submits)

	_, params, err := mime.ParseMediaType(fb.contentType)
	require.NoError(t, err)
	form, err := multipart.NewReader(bytes.NewReader(fb.submitted), params["boundary"]).ReadForm(32 << 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"Gangnam"}, form.Value["branch_0"])
	assert.Equal(t, []string{"OLED"}, form.Value["category_1"])
	assert.Equal(t, []string{"Wall"}, form.Value["display_type_0"])
	assert.Equal(t, []string{"Header", "Wobbler"}, form.Value["pop_materials_0"])
	require.Len(t, form.File["images_0"], 1)
	assert.Equal(t, "shelf.png", form.File["images_0"][0].Filename)
	f, err := form.File["images_0"][0].Open()
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	c.Wait()
	snap := c.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, 0, snap.Entries[0].Index)
	assert.Empty(t, snap.Entries[0].Category)
	assert.Empty(t, snap.Entries[0].Branch)
	_, ok := rec.last(UpdateEntryRemoved, 1)
	assert.True(t, ok)

	h2, err := c.AddEntry()
	require.NoError(t, err)
	assert.Equal(t, 2, h2.Index())
}

func TestController_SubmitFailureKeepsForm(t *testing.T) {
	fb := newFakeBackend()
	fb.submitErr = &backend.APIError{Status: 500, Message: "Branch is inactive"}
	c, _ := newTestController(t, fb)
	h0, err := c.Handle(0)
	require.NoError(t, err)
	readyEntry(t, c, h0)

	res, err := c.Submit(context.Background())
	require.Error(t, err)
	var apiErr *backend.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Branch is inactive", res.Message)
	assert.Equal(t, "OLED", c.Snapshot().Entries[0].Category)
}
