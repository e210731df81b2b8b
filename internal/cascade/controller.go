// Package cascade keeps the dependent selections of the data entry form
// consistent with each other and with the option lists the backend serves.
//
// Each entry walks category -> model -> display type / POP materials /
// images. Option lists are fetched asynchronously; every fetch is tagged
// with the entry, the parent value it was issued for and the entry's
// generation counter at that moment, and a response whose tag no longer
// matches the entry is dropped.
package cascade

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/metrics"
	"github.com/sirupsen/logrus"
)

const DefaultFetchTimeout = 8 * time.Second

// Backend is everything the controller needs from the merchandising API.
type Backend interface {
	Source
	SearchBranches(ctx context.Context, term string) ([]backend.Branch, error)
	BranchByCode(ctx context.Context, code string) (backend.Branch, error)
	SubmitEntries(ctx context.Context, action, contentType string, body io.Reader) (string, error)
}

type Config struct {
	Backend      Backend
	View         View
	Logger       logrus.FieldLogger
	FetchTimeout time.Duration
	SubmitAction string
}

// Controller owns the entries of one data entry form. It is safe for
// concurrent use. View updates are delivered while the controller's lock
// is held, so a View must not call back into the controller.
type Controller struct {
	mu      sync.Mutex
	entries map[int]*entry
	order   []int
	next    int
	nextID  uint64

	categories    OptionSet
	categoriesGen uint64
	submitting    bool
	closed        bool

	backend      Backend
	view         View
	log          logrus.FieldLogger
	fetchTimeout time.Duration
	submitAction string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a controller holding the single default entry.
func New(cfg Config) *Controller {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.View == nil {
		cfg.View = ViewFunc(func(Update) {})
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		entries:      map[int]*entry{},
		categories:   NewOptionSet(Categories, "", nil),
		backend:      cfg.Backend,
		view:         cfg.View,
		log:          cfg.Logger,
		fetchTimeout: cfg.FetchTimeout,
		submitAction: cfg.SubmitAction,
		ctx:          ctx,
		cancel:       cancel,
	}
	c.addEntryLocked()
	return c
}

// LoadCategories fetches the category list in the background and publishes
// it to every entry.
func (c *Controller) LoadCategories() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.categoriesGen++
	gen := c.categoriesGen
	c.spawnLocked(func(ctx context.Context) {
		set := FetchOptionSet(ctx, c.backend, Categories, "", c.log)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.categoriesGen {
			c.discardLocked(Categories, -1, "")
			return
		}
		c.categories = set
		c.publishLocked(Update{Kind: UpdateCategories, Entry: -1, Options: set.Values(), Enabled: set.Len() > 0})
	})
	return nil
}

// FetchOptionSet loads one option list under the controller's fetch
// timeout.
func (c *Controller) FetchOptionSet(ctx context.Context, kind FieldKind, key string) OptionSet {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	return FetchOptionSet(ctx, c.backend, kind, key, c.log)
}

func (c *Controller) AddEntry() (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Handle{}, ErrClosed
	}
	e := c.addEntryLocked()
	c.publishLocked(Update{Kind: UpdateEntryAdded, Entry: e.index, Options: c.categories.Values(), Enabled: c.categories.Len() > 0})
	return Handle{c: c, index: e.index}, nil
}

func (c *Controller) addEntryLocked() *entry {
	e := newEntry(c.next)
	c.next++
	c.entries[e.index] = e
	c.order = append(c.order, e.index)
	return e
}

// Handle returns the handle of an existing entry.
func (c *Controller) Handle(index int) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[index]; !ok {
		return Handle{}, ErrUnknownEntry
	}
	return Handle{c: c, index: index}, nil
}

// RemoveEntry destroys an entry. The last remaining entry cannot be
// removed. Indices of the other entries are left alone.
func (c *Controller) RemoveEntry(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[index]; !ok {
		return ErrUnknownEntry
	}
	if len(c.entries) <= 1 {
		return &ValidationError{Entry: index, Message: LastEntryMessage, Err: ErrLastEntry}
	}
	c.removeEntryLocked(index)
	return nil
}

func (c *Controller) removeEntryLocked(index int) {
	delete(c.entries, index)
	for i, idx := range c.order {
		if idx == index {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.publishLocked(Update{Kind: UpdateEntryRemoved, Entry: index})
}

// OnCategoryChanged records a new category for the entry, clears everything
// downstream of it and, for a non-empty category, fetches its models.
func (c *Controller) OnCategoryChanged(index int, category string) error {
	category = strings.TrimSpace(category)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	if category != "" && !c.categories.Contains(category) {
		return ErrInvalidOption
	}

	e.category = category
	e.categoryGen++
	e.models = NewOptionSet(Models, category, nil)
	e.clearModel()
	c.publishLocked(Update{Kind: UpdateModels, Entry: index, Enabled: false})
	c.publishLocked(Update{Kind: UpdateSections, Entry: index, Sections: &Sections{}})
	c.publishLocked(Update{Kind: UpdateAttachments, Entry: index, Attachments: []AttachmentView{}})

	if category == "" {
		return nil
	}
	gen := e.categoryGen
	c.spawnLocked(func(ctx context.Context) {
		set := c.FetchOptionSet(ctx, Models, category)
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[index]
		if c.closed || !ok || e.category != category || e.categoryGen != gen {
			c.discardLocked(Models, index, category)
			return
		}
		e.models = set
		c.publishLocked(Update{Kind: UpdateModels, Entry: index, Options: set.Values(), Enabled: set.Len() > 0})
	})
	return nil
}

// OnModelChanged records a new model. A non-empty model reveals the display
// type, POP material and image sections and fetches both option lists; an
// empty one hides and clears them.
func (c *Controller) OnModelChanged(index int, model string) error {
	model = strings.TrimSpace(model)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	if model != "" {
		if e.category == "" {
			return ErrNoCategory
		}
		if !e.models.Contains(model) {
			return ErrInvalidOption
		}
	}

	if model == "" {
		e.clearModel()
		c.publishLocked(Update{Kind: UpdateSections, Entry: index, Sections: &Sections{}})
		c.publishLocked(Update{Kind: UpdateAttachments, Entry: index, Attachments: []AttachmentView{}})
		return nil
	}

	e.model = model
	e.modelGen++
	e.resetModelOptions()
	e.sections = Sections{DisplayType: true, PopMaterials: true, Images: true}
	e.checklist = pendingChecklist(index)
	sections := e.sections
	checklist := e.checklist
	c.publishLocked(Update{Kind: UpdateSections, Entry: index, Sections: &sections})
	c.publishLocked(Update{Kind: UpdateDisplayTypes, Entry: index, Enabled: false})
	c.publishLocked(Update{Kind: UpdateChecklist, Entry: index, Checklist: &checklist})

	category := e.category
	gen := e.modelGen
	c.spawnLocked(func(ctx context.Context) {
		set := c.FetchOptionSet(ctx, DisplayTypes, category)
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[index]
		if c.closed || !ok || e.category != category || e.model != model || e.modelGen != gen {
			c.discardLocked(DisplayTypes, index, category)
			return
		}
		e.displayTypes = set
		c.publishLocked(Update{Kind: UpdateDisplayTypes, Entry: index, Options: set.Values(), Enabled: set.Len() > 0})
	})
	c.spawnLocked(func(ctx context.Context) {
		set := c.FetchOptionSet(ctx, PopMaterials, model)
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[index]
		if c.closed || !ok || e.model != model || e.modelGen != gen {
			c.discardLocked(PopMaterials, index, model)
			return
		}
		e.popMaterials = set
		e.selectedPop = map[string]bool{}
		e.checklist = RenderChecklist(index, set.Values())
		checklist := e.checklist
		c.publishLocked(Update{Kind: UpdateChecklist, Entry: index, Checklist: &checklist})
	})
	return nil
}

// SelectDisplayType sets the display type. The value must be one the
// backend offered for the entry's category; empty clears it.
func (c *Controller) SelectDisplayType(index int, value string) error {
	value = strings.TrimSpace(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	if e.model == "" {
		return ErrNoModel
	}
	if value != "" && !e.displayTypes.Contains(value) {
		return ErrInvalidOption
	}
	e.displayType = value
	return nil
}

// SetPopMaterial checks or unchecks one POP material.
func (c *Controller) SetPopMaterial(index int, value string, checked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	if e.model == "" {
		return ErrNoModel
	}
	if !e.popMaterials.Contains(value) {
		return ErrInvalidOption
	}
	if checked {
		e.selectedPop[value] = true
	} else {
		delete(e.selectedPop, value)
	}
	return nil
}

// AttachImages validates a batch and appends it to the entry's running
// list. A single bad file rejects the whole batch. Overflow beyond
// MaxImagesPerEntry is cut off with a warning.
func (c *Controller) AttachImages(index int, files []File) (AttachResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return AttachResult{}, err
	}
	if e.model == "" {
		return AttachResult{}, ErrNoModel
	}
	if err := ValidateImages(files); err != nil {
		metrics.AttachmentRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		if verr, ok := err.(*ValidationError); ok {
			verr.Entry = index
		}
		return AttachResult{Count: len(e.attachments)}, err
	}

	added := make([]*attachment, 0, len(files))
	for _, f := range files {
		c.nextID++
		a := &attachment{id: c.nextID, file: f}
		e.attachments = append(e.attachments, a)
		added = append(added, a)
	}
	result := AttachResult{}
	if len(e.attachments) > MaxImagesPerEntry {
		e.attachments = e.attachments[:MaxImagesPerEntry:MaxImagesPerEntry]
		result.Truncated = true
		result.Warning = TruncatedImagesMessage
	}
	result.Count = len(e.attachments)
	c.publishLocked(Update{Kind: UpdateAttachments, Entry: index, Attachments: attachmentViews(e.attachments)})

	for _, a := range added {
		if !e.hasAttachment(a.id) {
			continue
		}
		c.spawnPreviewLocked(index, a.id, a.file)
	}
	return result, nil
}

// RemoveImage drops one attachment by its displayed position. The rest
// keep their order and are renumbered.
func (c *Controller) RemoveImage(index, fileIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return err
	}
	if fileIndex < 0 || fileIndex >= len(e.attachments) {
		return ErrUnknownAttachment
	}
	e.attachments = append(e.attachments[:fileIndex:fileIndex], e.attachments[fileIndex+1:]...)
	c.publishLocked(Update{Kind: UpdateAttachments, Entry: index, Attachments: attachmentViews(e.attachments)})
	return nil
}

// Files returns the files the form would transmit for the entry, in order.
func (c *Controller) Files(index int) ([]File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entryLocked(index)
	if err != nil {
		return nil, err
	}
	return e.files(), nil
}

func (c *Controller) spawnPreviewLocked(index int, id uint64, f File) {
	c.spawnLocked(func(ctx context.Context) {
		preview, err := thumbnail(f)
		if err != nil {
			if err != errNoPreview {
				c.log.WithFields(logrus.Fields{"entry": index, "file": f.Name}).WithError(err).Debug("preview failed")
			}
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[index]
		if c.closed || !ok {
			return
		}
		for _, a := range e.attachments {
			if a.id == id {
				a.preview = preview
				c.publishLocked(Update{Kind: UpdateAttachments, Entry: index, Attachments: attachmentViews(e.attachments)})
				return
			}
		}
	})
}

// Snapshot copies the state of every entry in creation order.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{Categories: c.categories.Values(), Entries: make([]EntrySnapshot, 0, len(c.order))}
	for _, idx := range c.order {
		snap.Entries = append(snap.Entries, c.entries[idx].snapshot())
	}
	return snap
}

// Reset returns the form to its initial state: every entry but the first
// is destroyed and the first is cleared in place.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	if len(c.order) == 0 {
		return
	}
	first := c.order[0]
	for _, idx := range append([]int(nil), c.order[1:]...) {
		c.removeEntryLocked(idx)
	}
	e := c.entries[first]
	e.reset()
	c.publishLocked(Update{Kind: UpdateReset, Entry: first, Options: c.categories.Values(), Enabled: c.categories.Len() > 0})
}

// Close cancels in-flight fetches and waits for them to finish. Late
// responses are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until every background fetch started so far has been
// applied or dropped.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) entryLocked(index int) (*entry, error) {
	if c.closed {
		return nil, ErrClosed
	}
	e, ok := c.entries[index]
	if !ok {
		return nil, ErrUnknownEntry
	}
	return e, nil
}

func (c *Controller) spawnLocked(fn func(ctx context.Context)) {
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Controller) discardLocked(kind FieldKind, index int, key string) {
	metrics.StaleDiscardsTotal.WithLabelValues(kind.String()).Inc()
	c.log.WithFields(logrus.Fields{"entry": index, "kind": kind.String(), "key": key}).Debug("stale option response dropped")
}

func (c *Controller) publishLocked(u Update) {
	c.view.Update(u)
}

func rejectionReason(err error) string {
	verr, ok := err.(*ValidationError)
	if !ok || len(verr.Fields) < 2 {
		return "invalid"
	}
	return verr.Fields[1]
}

// Indices lists live entry indices in creation order.
func (c *Controller) Indices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.order...)
}
