package management

import (
	"context"
	"sync"

	"github.com/phillip-england/popsuite/internal/backend"
)

// fakeSource is an in-memory backend that filters and mutates rows the way
// the real one does.
type fakeSource struct {
	mu      sync.Mutex
	rows    map[DataType][]backend.ManagementRow
	nextID  int64
	reqs    []backend.ManageRequest
	queries []string
	failOn  map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		nextID: 100,
		rows: map[DataType][]backend.ManagementRow{
			Categories: {
				{ID: 1, Name: "OLED", CreatedAt: "2024-05-01 10:00:00"},
				{ID: 2, Name: "QLED", CreatedAt: "2024-05-02T11:30:00Z"},
			},
			Models: {
				{ID: 10, Name: "S95F", Category: "OLED"},
				{ID: 11, Name: "S90F", Category: "OLED"},
				{ID: 12, Name: "S90F", Category: "OLED"},
				{ID: 13, Name: "Q8F", Category: "QLED"},
			},
			DisplayTypes: {
				{ID: 20, Name: "Wall Mount", Category: "OLED"},
			},
			PopMaterials: {
				{ID: 30, Name: "Header Card", Category: "OLED", Model: "S95F"},
				{ID: 31, Name: "Shelf Talker", Category: "OLED", Model: "S90F"},
			},
		},
		failOn: map[string]error{},
	}
}

func (f *fakeSource) ManagementData(_ context.Context, dataType, category, model string) ([]backend.ManagementRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dataType + ":" + category + ":" + model
	f.queries = append(f.queries, key)
	if err := f.failOn[key]; err != nil {
		return nil, err
	}
	var out []backend.ManagementRow
	for _, r := range f.rows[DataType(dataType)] {
		if category != "" && r.Category != category {
			continue
		}
		if model != "" && r.Model != model {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) ManageData(_ context.Context, req backend.ManageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if err := f.failOn[req.Action+":"+req.Type]; err != nil {
		return "", err
	}
	t := DataType(req.Type)
	switch req.Action {
	case "add":
		f.nextID++
		f.rows[t] = append(f.rows[t], backend.ManagementRow{
			ID:       f.nextID,
			Name:     req.Name,
			Category: f.nameOf(Categories, req.CategoryID),
			Model:    f.nameOf(Models, req.ModelID),
		})
		return "Added successfully", nil
	case "edit":
		var old string
		for i, r := range f.rows[t] {
			if r.ID == req.ID {
				old = r.Name
				f.rows[t][i].Name = req.Name
			}
		}
		if t == Categories {
			f.renameRefs(old, req.Name)
		}
		return "Updated successfully", nil
	case "delete":
		var name string
		kept := f.rows[t][:0]
		for _, r := range f.rows[t] {
			if r.ID == req.ID {
				name = r.Name
				continue
			}
			kept = append(kept, r)
		}
		f.rows[t] = kept
		if t == Categories {
			for _, dt := range []DataType{Models, DisplayTypes, PopMaterials} {
				kept := f.rows[dt][:0]
				for _, r := range f.rows[dt] {
					if r.Category != name {
						kept = append(kept, r)
					}
				}
				f.rows[dt] = kept
			}
		}
		return "Deleted successfully", nil
	}
	return "", &backend.APIError{Status: 400, Message: "Invalid action"}
}

func (f *fakeSource) nameOf(t DataType, id int64) string {
	for _, r := range f.rows[t] {
		if r.ID == id {
			return r.Name
		}
	}
	return ""
}

func (f *fakeSource) renameRefs(old, name string) {
	for _, dt := range []DataType{Models, DisplayTypes, PopMaterials} {
		for i, r := range f.rows[dt] {
			if r.Category == old {
				f.rows[dt][i].Category = name
			}
		}
	}
}

func (f *fakeSource) lastRequest() backend.ManageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func (f *fakeSource) queryCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if q == key {
			n++
		}
	}
	return n
}
