package cascade

import (
	"bytes"
	"fmt"
	"html/template"
)

const NoMaterialsPlaceholder = "No POP materials configured for this model yet."

type ChecklistItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

// Checklist is the POP material checkbox group of one entry. Every box
// shares Name so the form posts the checked values as a repeated field.
type Checklist struct {
	Entry       int             `json:"entry"`
	Name        string          `json:"name"`
	Items       []ChecklistItem `json:"items"`
	Placeholder string          `json:"placeholder,omitempty"`
	Pending     bool            `json:"pending,omitempty"`
	HTML        template.HTML   `json:"html"`
}

var checklistTmpl = template.Must(template.New("checklist").Parse(`<div class="checklist" data-entry="{{.Entry}}">
{{- if .Pending}}<p class="checklist-loading">Loading POP materials...</p>
{{- else if .Placeholder}}<p class="no-materials">{{.Placeholder}}</p>
{{- else}}{{range .Items}}
<label class="checklist-item" for="{{.ID}}"><input type="checkbox" id="{{.ID}}" name="{{$.Name}}" value="{{.Value}}"{{if .Checked}} checked{{end}}> {{.Value}}</label>
{{- end}}{{end}}
</div>`))

func checklistName(entryIndex int) string {
	return fmt.Sprintf("pop_materials_%d", entryIndex)
}

// RenderChecklist builds the checklist for options, one box per distinct
// value, or the placeholder when there are none.
func RenderChecklist(entryIndex int, options []string) Checklist {
	set := NewOptionSet(PopMaterials, "", options)
	cl := Checklist{Entry: entryIndex, Name: checklistName(entryIndex)}
	for j, value := range set.values {
		cl.Items = append(cl.Items, ChecklistItem{
			ID:    fmt.Sprintf("pop_%d_%d", entryIndex, j),
			Name:  cl.Name,
			Value: value,
		})
	}
	if len(cl.Items) == 0 {
		cl.Placeholder = NoMaterialsPlaceholder
	}
	cl.HTML = cl.render()
	return cl
}

func pendingChecklist(entryIndex int) Checklist {
	cl := Checklist{Entry: entryIndex, Name: checklistName(entryIndex), Pending: true}
	cl.HTML = cl.render()
	return cl
}

func (cl Checklist) withSelection(selected map[string]bool) Checklist {
	out := cl
	out.Items = make([]ChecklistItem, len(cl.Items))
	for i, item := range cl.Items {
		item.Checked = selected[item.Value]
		out.Items[i] = item
	}
	out.HTML = out.render()
	return out
}

func (cl Checklist) render() template.HTML {
	var buf bytes.Buffer
	if err := checklistTmpl.Execute(&buf, cl); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}
