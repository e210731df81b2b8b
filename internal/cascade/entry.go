package cascade

import (
	"github.com/phillip-england/popsuite/internal/branchsearch"
)

type entry struct {
	index int

	branch   string
	shopCode string
	// bumped on every keystroke so late suggestion responses are dropped
	branchGen uint64
	codeGen   uint64
	suggest   branchsearch.List

	category    string
	categoryGen uint64
	models      OptionSet

	model        string
	modelGen     uint64
	displayType  string
	displayTypes OptionSet
	popMaterials OptionSet
	selectedPop  map[string]bool
	checklist    Checklist
	sections     Sections

	attachments []*attachment
}

func newEntry(index int) *entry {
	e := &entry{index: index}
	e.reset()
	return e
}

// clearModel drops the model and everything that depends on it.
func (e *entry) clearModel() {
	e.model = ""
	e.modelGen++
	e.resetModelOptions()
	e.sections = Sections{}
	e.checklist = Checklist{}
	e.attachments = nil
}

func (e *entry) resetModelOptions() {
	e.displayType = ""
	e.displayTypes = NewOptionSet(DisplayTypes, "", nil)
	e.popMaterials = NewOptionSet(PopMaterials, "", nil)
	e.selectedPop = map[string]bool{}
}

func (e *entry) reset() {
	e.branch = ""
	e.shopCode = ""
	e.branchGen++
	e.codeGen++
	e.suggest.Hide()
	e.category = ""
	e.categoryGen++
	e.models = NewOptionSet(Models, "", nil)
	e.clearModel()
}

func (e *entry) hasAttachment(id uint64) bool {
	for _, a := range e.attachments {
		if a.id == id {
			return true
		}
	}
	return false
}

func (e *entry) files() []File {
	out := make([]File, 0, len(e.attachments))
	for _, a := range e.attachments {
		out = append(out, a.file)
	}
	return out
}

// selectedMaterials lists checked POP materials in option order.
func (e *entry) selectedMaterials() []string {
	out := []string{}
	for _, value := range e.popMaterials.values {
		if e.selectedPop[value] {
			out = append(out, value)
		}
	}
	return out
}

type EntrySnapshot struct {
	Index        int                `json:"index"`
	Branch       string             `json:"branch"`
	ShopCode     string             `json:"shopCode"`
	Category     string             `json:"category"`
	Model        string             `json:"model"`
	DisplayType  string             `json:"displayType"`
	Models       []string           `json:"models"`
	DisplayTypes []string           `json:"displayTypes"`
	PopMaterials []string           `json:"popMaterials"`
	Selected     []string           `json:"selected"`
	Sections     Sections           `json:"sections"`
	Checklist    Checklist          `json:"checklist"`
	Attachments  []AttachmentView   `json:"attachments"`
	Suggestions  branchsearch.State `json:"suggestions"`
}

type Snapshot struct {
	Categories []string        `json:"categories"`
	Entries    []EntrySnapshot `json:"entries"`
}

func (e *entry) snapshot() EntrySnapshot {
	return EntrySnapshot{
		Index:        e.index,
		Branch:       e.branch,
		ShopCode:     e.shopCode,
		Category:     e.category,
		Model:        e.model,
		DisplayType:  e.displayType,
		Models:       e.models.Values(),
		DisplayTypes: e.displayTypes.Values(),
		PopMaterials: e.popMaterials.Values(),
		Selected:     e.selectedMaterials(),
		Sections:     e.sections,
		Checklist:    e.checklist.withSelection(e.selectedPop),
		Attachments:  attachmentViews(e.attachments),
		Suggestions:  e.suggest.State(),
	}
}

// Handle addresses one entry. It replaces looking entries up by
// interpolated element ids.
type Handle struct {
	c     *Controller
	index int
}

func (h Handle) Index() int { return h.index }

func (h Handle) SetCategory(category string) error {
	return h.c.OnCategoryChanged(h.index, category)
}

func (h Handle) SetModel(model string) error {
	return h.c.OnModelChanged(h.index, model)
}

func (h Handle) SetDisplayType(value string) error {
	return h.c.SelectDisplayType(h.index, value)
}

func (h Handle) SetPopMaterial(value string, checked bool) error {
	return h.c.SetPopMaterial(h.index, value, checked)
}

func (h Handle) AttachImages(files []File) (AttachResult, error) {
	return h.c.AttachImages(h.index, files)
}

func (h Handle) RemoveImage(fileIndex int) error {
	return h.c.RemoveImage(h.index, fileIndex)
}

func (h Handle) BranchInput(text string) error {
	return h.c.OnBranchInput(h.index, text)
}

func (h Handle) ShopCodeInput(code string) error {
	return h.c.OnShopCodeInput(h.index, code)
}

func (h Handle) Remove() error {
	return h.c.RemoveEntry(h.index)
}
