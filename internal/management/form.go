package management

import (
	"strconv"
	"strings"

	"github.com/phillip-england/popsuite/internal/backend"
)

// ValidationError is a form problem caught before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ItemForm is the add/edit dialog as submitted. Ids arrive as text from
// select values and are coerced here.
type ItemForm struct {
	Type       DataType `json:"type"`
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CategoryID string   `json:"categoryId"`
	ModelID    string   `json:"modelId"`
}

// Request turns the form into a manage_data call. An id makes it an edit;
// without one it is an add.
func (f ItemForm) Request() (backend.ManageRequest, error) {
	if _, err := ParseDataType(string(f.Type)); err != nil {
		return backend.ManageRequest{}, &ValidationError{Field: "type", Message: "Unknown data type"}
	}
	req := backend.ManageRequest{Action: "add", Type: string(f.Type), Name: strings.TrimSpace(f.Name)}

	if raw := strings.TrimSpace(f.ID); raw != "" {
		id, ok := parseID(raw)
		if !ok {
			return backend.ManageRequest{}, &ValidationError{Field: "id", Message: "Invalid item id"}
		}
		req.Action = "edit"
		req.ID = id
	}
	if f.Type != Categories {
		req.CategoryID, _ = parseID(f.CategoryID)
	}
	if f.Type == PopMaterials {
		req.ModelID, _ = parseID(f.ModelID)
	}

	if req.Name == "" {
		return backend.ManageRequest{}, &ValidationError{Field: "name", Message: "Name is required"}
	}
	if f.Type != Categories && req.CategoryID == 0 {
		return backend.ManageRequest{}, &ValidationError{Field: "category", Message: "Category is required"}
	}
	if f.Type == PopMaterials && req.ModelID == 0 {
		return backend.ManageRequest{}, &ValidationError{Field: "model", Message: "Model is required"}
	}
	return req, nil
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
