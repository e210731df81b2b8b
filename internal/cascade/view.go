package cascade

import (
	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/branchsearch"
)

type UpdateKind string

const (
	UpdateCategories   UpdateKind = "categories"
	UpdateEntryAdded   UpdateKind = "entry_added"
	UpdateEntryRemoved UpdateKind = "entry_removed"
	UpdateModels       UpdateKind = "models"
	UpdateSections     UpdateKind = "sections"
	UpdateDisplayTypes UpdateKind = "display_types"
	UpdateChecklist    UpdateKind = "checklist"
	UpdateAttachments  UpdateKind = "attachments"
	UpdateSuggestions  UpdateKind = "suggestions"
	UpdateBranch       UpdateKind = "branch"
	UpdateNotice       UpdateKind = "notice"
	UpdateReset        UpdateKind = "reset"
)

// Sections says which downstream parts of an entry are shown.
type Sections struct {
	DisplayType  bool `json:"displayType"`
	PopMaterials bool `json:"popMaterials"`
	Images       bool `json:"images"`
}

type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Update is one change the page has to reflect. Entry is -1 for updates
// that apply to every entry.
type Update struct {
	Kind        UpdateKind          `json:"kind"`
	Entry       int                 `json:"entry"`
	Options     []string            `json:"options,omitempty"`
	Enabled     bool                `json:"enabled"`
	Sections    *Sections           `json:"sections,omitempty"`
	Checklist   *Checklist          `json:"checklist,omitempty"`
	Attachments []AttachmentView    `json:"attachments,omitempty"`
	Suggestions *branchsearch.State `json:"suggestions,omitempty"`
	Branch      *backend.Branch     `json:"branch,omitempty"`
	Notice      *Notice             `json:"notice,omitempty"`
}

type View interface {
	Update(u Update)
}

type ViewFunc func(u Update)

func (f ViewFunc) Update(u Update) { f(u) }
