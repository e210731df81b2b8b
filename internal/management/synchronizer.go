package management

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/metrics"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownModel    = errors.New("unknown model")
	ErrNoCategory      = errors.New("category filter required")
	ErrModelFilter     = errors.New("model filter only applies to pop materials")
)

type Source interface {
	ManagementData(ctx context.Context, dataType, category, model string) ([]backend.ManagementRow, error)
	ManageData(ctx context.Context, req backend.ManageRequest) (string, error)
}

// State is everything the management page renders.
type State struct {
	Active  DataType                   `json:"active"`
	Filters map[DataType]FilterContext `json:"filters"`
	Tables  map[DataType]TableState    `json:"tables"`
}

// Synchronizer keeps the four reference tables consistent with the
// backend. Operations are serialized; a table is only ever replaced by the
// result of re-running the query that produced it.
type Synchronizer struct {
	mu  sync.Mutex
	src Source
	log logrus.FieldLogger

	active  DataType
	filters map[DataType]FilterContext
	tables  map[DataType]TableState

	categories []Option
	catLoaded  bool
	models     map[string][]Option
}

func NewSynchronizer(src Source, log logrus.FieldLogger) *Synchronizer {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	s := &Synchronizer{
		src:     src,
		log:     log.WithField("component", "management"),
		active:  Categories,
		filters: make(map[DataType]FilterContext, len(DataTypes)),
		tables:  make(map[DataType]TableState, len(DataTypes)),
		models:  make(map[string][]Option),
	}
	for _, t := range DataTypes {
		s.tables[t] = emptyTable(t, FilterContext{})
	}
	return s
}

// Init loads the categories table and the category filter options.
func (s *Synchronizer) Init(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = Categories
	if _, err := s.categoryOptionsLocked(ctx); err != nil {
		return s.stateLocked(), err
	}
	if _, err := s.loadLocked(ctx, Categories); err != nil {
		return s.stateLocked(), err
	}
	return s.stateLocked(), nil
}

// SelectTab makes t the active table and reloads it with the filter it
// already has.
func (s *Synchronizer) SelectTab(ctx context.Context, t DataType) (TableState, error) {
	if _, err := ParseDataType(string(t)); err != nil {
		return TableState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = t
	return s.loadLocked(ctx, t)
}

// SetCategoryFilter changes the category filter of t. The model filter is
// cleared with it. An empty category returns the table to its
// instructional state.
func (s *Synchronizer) SetCategoryFilter(ctx context.Context, t DataType, category string) (TableState, error) {
	if _, err := ParseDataType(string(t)); err != nil {
		return TableState{}, err
	}
	category = strings.TrimSpace(category)

	s.mu.Lock()
	defer s.mu.Unlock()

	if category != "" {
		opts, err := s.categoryOptionsLocked(ctx)
		if err != nil {
			return s.tables[t], err
		}
		o, ok := findByName(opts, category)
		if !ok {
			return s.tables[t], fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
		category = o.Name
	}
	s.filters[t] = FilterContext{Category: category}
	return s.loadLocked(ctx, t)
}

// SetModelFilter narrows the pop materials table to one model of the
// current category filter.
func (s *Synchronizer) SetModelFilter(ctx context.Context, t DataType, model string) (TableState, error) {
	if t != PopMaterials {
		return TableState{}, ErrModelFilter
	}
	model = strings.TrimSpace(model)

	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.filters[t]
	if model != "" {
		if f.Category == "" {
			return s.tables[t], ErrNoCategory
		}
		opts, err := s.modelOptionsLocked(ctx, f.Category)
		if err != nil {
			return s.tables[t], err
		}
		o, ok := findByName(opts, model)
		if !ok {
			return s.tables[t], fmt.Errorf("%w: %q", ErrUnknownModel, model)
		}
		model = o.Name
	}
	f.Model = model
	s.filters[t] = f
	return s.loadLocked(ctx, t)
}

// Refresh re-runs the query behind t.
func (s *Synchronizer) Refresh(ctx context.Context, t DataType) (TableState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, t)
}

func (s *Synchronizer) CategoryOptions(ctx context.Context) ([]Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts, err := s.categoryOptionsLocked(ctx)
	return append([]Option(nil), opts...), err
}

// ModelOptions lists the models of category, one option per distinct name.
func (s *Synchronizer) ModelOptions(ctx context.Context, category string) ([]Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts, err := s.modelOptionsLocked(ctx, strings.TrimSpace(category))
	return append([]Option(nil), opts...), err
}

// Save adds or edits one item and reloads the table it belongs to.
func (s *Synchronizer) Save(ctx context.Context, form ItemForm) (string, TableState, error) {
	req, err := form.Request()
	if err != nil {
		metrics.MutationsTotal.WithLabelValues(string(form.Type), "save", metrics.OutcomeInvalid).Inc()
		return "", TableState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var oldName string
	if req.Action == "edit" {
		oldName = s.nameLocked(form.Type, req.ID)
	}

	msg, err := s.src.ManageData(ctx, req)
	if err != nil {
		metrics.MutationsTotal.WithLabelValues(req.Type, req.Action, metrics.OutcomeError).Inc()
		s.log.WithError(err).WithFields(logrus.Fields{"type": req.Type, "action": req.Action}).Warn("save failed")
		return "", s.tables[form.Type], err
	}
	metrics.MutationsTotal.WithLabelValues(req.Type, req.Action, metrics.OutcomeOK).Inc()

	var touched []DataType
	switch form.Type {
	case Categories:
		if oldName != "" && oldName != req.Name {
			touched = s.renameCategoryLocked(oldName, req.Name)
		}
		s.invalidateCategoriesLocked()
	case Models:
		if oldName != "" && oldName != req.Name && s.renameModelLocked(oldName, req.Name) {
			touched = append(touched, PopMaterials)
		}
		s.invalidateModelsLocked()
	}
	s.reloadLocked(ctx, form.Type, touched)

	table, err := s.loadLocked(ctx, form.Type)
	return msg, table, err
}

// Delete removes one item. Deleting a category that is an active filter
// clears that filter everywhere it is used.
func (s *Synchronizer) Delete(ctx context.Context, t DataType, id int64) (string, TableState, error) {
	if _, err := ParseDataType(string(t)); err != nil {
		return "", TableState{}, err
	}
	if id <= 0 {
		return "", TableState{}, &ValidationError{Field: "id", Message: "Invalid item id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.nameLocked(t, id)
	msg, err := s.src.ManageData(ctx, backend.ManageRequest{Action: "delete", Type: string(t), ID: id})
	if err != nil {
		metrics.MutationsTotal.WithLabelValues(string(t), "delete", metrics.OutcomeError).Inc()
		s.log.WithError(err).WithFields(logrus.Fields{"type": t, "id": id}).Warn("delete failed")
		return "", s.tables[t], err
	}
	metrics.MutationsTotal.WithLabelValues(string(t), "delete", metrics.OutcomeOK).Inc()

	switch t {
	case Categories:
		if name != "" {
			s.clearCategoryLocked(name)
		}
		s.invalidateCategoriesLocked()
	case Models:
		if name != "" && s.clearModelLocked(name) {
			s.reloadLocked(ctx, t, []DataType{PopMaterials})
		}
		s.invalidateModelsLocked()
	}

	table, err := s.loadLocked(ctx, t)
	return msg, table, err
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Synchronizer) stateLocked() State {
	st := State{
		Active:  s.active,
		Filters: make(map[DataType]FilterContext, len(DataTypes)),
		Tables:  make(map[DataType]TableState, len(DataTypes)),
	}
	for _, t := range DataTypes {
		st.Filters[t] = s.filters[t]
		table := s.tables[t]
		table.Rows = append([]Row(nil), table.Rows...)
		st.Tables[t] = table
	}
	return st
}

func (s *Synchronizer) loadLocked(ctx context.Context, t DataType) (TableState, error) {
	f := s.filters[t]
	if t.NeedsCategory() && f.Category == "" {
		s.tables[t] = emptyTable(t, f)
		return s.tables[t], nil
	}

	raw, err := s.src.ManagementData(ctx, string(t), f.Category, f.Model)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"type": t, "category": f.Category, "model": f.Model}).Warn("load table failed")
		return s.tables[t], err
	}

	table := TableState{Type: t, Label: t.Label(), Filter: f, Columns: t.ColumnCount()}
	table.Rows = make([]Row, 0, len(raw))
	for _, r := range raw {
		table.Rows = append(table.Rows, Row{
			ID:        r.ID,
			Name:      r.Name,
			Category:  orNA(r.Category),
			Model:     orNA(r.Model),
			CreatedAt: FormatDate(r.CreatedAt),
		})
	}
	if len(table.Rows) == 0 {
		table.Empty = true
		table.EmptyMessage = NoRowsMessage
	}
	s.tables[t] = table
	return table, nil
}

func emptyTable(t DataType, f FilterContext) TableState {
	return TableState{
		Type:         t,
		Label:        t.Label(),
		Filter:       f,
		Empty:        true,
		EmptyMessage: t.EmptyStateMessage(),
		Columns:      t.ColumnCount(),
	}
}

func (s *Synchronizer) categoryOptionsLocked(ctx context.Context) ([]Option, error) {
	if s.catLoaded {
		return s.categories, nil
	}
	rows, err := s.src.ManagementData(ctx, string(Categories), "", "")
	if err != nil {
		return nil, err
	}
	s.categories = optionsFrom(rows)
	s.catLoaded = true
	return s.categories, nil
}

func (s *Synchronizer) modelOptionsLocked(ctx context.Context, category string) ([]Option, error) {
	if category == "" {
		return nil, nil
	}
	if opts, ok := s.models[category]; ok {
		return opts, nil
	}
	rows, err := s.src.ManagementData(ctx, string(Models), category, "")
	if err != nil {
		return nil, err
	}
	opts := optionsFrom(rows)
	s.models[category] = opts
	return opts, nil
}

func (s *Synchronizer) invalidateCategoriesLocked() {
	s.categories = nil
	s.catLoaded = false
	s.models = make(map[string][]Option)
}

func (s *Synchronizer) invalidateModelsLocked() {
	s.models = make(map[string][]Option)
}

// nameLocked finds the display name of an item from whatever is cached.
func (s *Synchronizer) nameLocked(t DataType, id int64) string {
	for _, r := range s.tables[t].Rows {
		if r.ID == id {
			return r.Name
		}
	}
	switch t {
	case Categories:
		for _, o := range s.categories {
			if o.ID == id {
				return o.Name
			}
		}
	case Models:
		for _, opts := range s.models {
			for _, o := range opts {
				if o.ID == id {
					return o.Name
				}
			}
		}
	}
	return ""
}

func (s *Synchronizer) clearCategoryLocked(name string) {
	for _, t := range DataTypes {
		if f := s.filters[t]; f.Category == name {
			s.filters[t] = FilterContext{}
			s.tables[t] = emptyTable(t, FilterContext{})
		}
	}
}

func (s *Synchronizer) clearModelLocked(name string) bool {
	f := s.filters[PopMaterials]
	if f.Model != name {
		return false
	}
	f.Model = ""
	s.filters[PopMaterials] = f
	return true
}

func (s *Synchronizer) renameCategoryLocked(from, to string) []DataType {
	var changed []DataType
	for _, t := range DataTypes {
		if f := s.filters[t]; f.Category == from {
			f.Category = to
			s.filters[t] = f
			changed = append(changed, t)
		}
	}
	return changed
}

func (s *Synchronizer) renameModelLocked(from, to string) bool {
	f := s.filters[PopMaterials]
	if f.Model != from {
		return false
	}
	f.Model = to
	s.filters[PopMaterials] = f
	return true
}

// reloadLocked refreshes tables whose filter moved under them. The table
// being mutated is skipped; its caller reloads it and reports the error.
func (s *Synchronizer) reloadLocked(ctx context.Context, skip DataType, types []DataType) {
	for _, t := range types {
		if t == skip {
			continue
		}
		if _, err := s.loadLocked(ctx, t); err != nil {
			s.log.WithError(err).WithField("type", t).Debug("dependent reload failed")
		}
	}
}

func optionsFrom(rows []backend.ManagementRow) []Option {
	seen := make(map[string]struct{}, len(rows))
	opts := make([]Option, 0, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r.Name)
		if name == "" || r.ID <= 0 {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		opts = append(opts, Option{ID: r.ID, Name: name})
	}
	return opts
}

func findByName(opts []Option, name string) (Option, bool) {
	for _, o := range opts {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Option{}, false
}
