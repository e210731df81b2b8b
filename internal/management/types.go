package management

import (
	"fmt"
	"strings"
	"time"
)

type DataType string

const (
	Categories   DataType = "categories"
	Models       DataType = "models"
	DisplayTypes DataType = "display_types"
	PopMaterials DataType = "pop_materials"
)

var DataTypes = []DataType{Categories, Models, DisplayTypes, PopMaterials}

func ParseDataType(raw string) (DataType, error) {
	t := DataType(strings.TrimSpace(raw))
	for _, known := range DataTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown data type %q", raw)
}

func (t DataType) Label() string {
	switch t {
	case Categories:
		return "Category"
	case Models:
		return "Model"
	case DisplayTypes:
		return "Display Type"
	case PopMaterials:
		return "POP Material"
	default:
		return "Item"
	}
}

// ColumnCount is the width of the table, action column included.
func (t DataType) ColumnCount() int {
	switch t {
	case Categories:
		return 4
	case Models, DisplayTypes:
		return 5
	case PopMaterials:
		return 6
	default:
		return 4
	}
}

// NeedsCategory reports whether the table stays empty until a category
// filter is chosen.
func (t DataType) NeedsCategory() bool {
	return t != Categories
}

func (t DataType) EmptyStateMessage() string {
	switch t {
	case Models:
		return "Select a category from the filter above to view models"
	case DisplayTypes:
		return "Select a category from the filter above to view display types"
	case PopMaterials:
		return "Select a category (and optionally a model) from the filters above to view POP materials"
	default:
		return "Use the filters above to view data"
	}
}

const NoRowsMessage = "No items found"

// FilterContext is the filter that produced a table's visible rows.
type FilterContext struct {
	Category string `json:"category"`
	Model    string `json:"model"`
}

type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Row struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Model     string `json:"model"`
	CreatedAt string `json:"createdAt"`
}

type TableState struct {
	Type         DataType      `json:"type"`
	Label        string        `json:"label"`
	Filter       FilterContext `json:"filter"`
	Rows         []Row         `json:"rows"`
	Empty        bool          `json:"empty"`
	EmptyMessage string        `json:"emptyMessage,omitempty"`
	Columns      int           `json:"columns"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC1123,
	"2006-01-02",
}

// FormatDate renders a backend timestamp for the table, or "N/A" when it
// cannot be read.
func FormatDate(raw string) string {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "N/A", "null", "undefined", "None":
		return "N/A"
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("2006-01-02 15:04")
		}
	}
	return "N/A"
}

func orNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}
