package clientapp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phillip-england/popsuite/internal/management"
	"github.com/phillip-england/popsuite/internal/usermgmt"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxImportBytes  = 10 << 20
)

type filterRequest struct {
	Category string  `json:"category"`
	Model    *string `json:"model"`
}

type branchRequest struct {
	Branch string `json:"branch"`
}

// synchronizer resolves the caller's management state or writes the error.
func (s *server) synchronizer(w http.ResponseWriter, r *http.Request) (*management.Synchronizer, bool) {
	sess := s.session(w, r)
	sync, err := sess.management(r.Context())
	if err != nil {
		s.writeError(w, err, "Error loading data", nil)
		return nil, false
	}
	return sync, true
}

func dataTypeParam(r *http.Request) (management.DataType, error) {
	t, err := management.ParseDataType(chi.URLParam(r, "type"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return t, nil
}

func (s *server) managementState(w http.ResponseWriter, r *http.Request) {
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	s.writeOK(w, "", sync.State())
}

func (s *server) categoryOptions(w http.ResponseWriter, r *http.Request) {
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	opts, err := sync.CategoryOptions(r.Context())
	if err != nil {
		s.writeError(w, err, "Error loading categories", nil)
		return
	}
	s.writeOK(w, "", opts)
}

func (s *server) modelOptions(w http.ResponseWriter, r *http.Request) {
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	opts, err := sync.ModelOptions(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeError(w, err, "Error loading models", nil)
		return
	}
	s.writeOK(w, "", opts)
}

func (s *server) selectTab(w http.ResponseWriter, r *http.Request) {
	t, err := dataTypeParam(r)
	if err != nil {
		s.writeError(w, err, "Unknown data type", nil)
		return
	}
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	table, err := sync.SelectTab(r.Context(), t)
	if err != nil {
		s.writeError(w, err, "Error loading data", table)
		return
	}
	s.writeOK(w, "", table)
}

// setFilter applies a category filter and, when model is present, the
// model filter on top of it.
func (s *server) setFilter(w http.ResponseWriter, r *http.Request) {
	t, err := dataTypeParam(r)
	if err != nil {
		s.writeError(w, err, "Unknown data type", nil)
		return
	}
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	table, err := sync.SetCategoryFilter(r.Context(), t, req.Category)
	if err == nil && req.Model != nil && *req.Model != "" {
		table, err = sync.SetModelFilter(r.Context(), t, *req.Model)
	}
	if err != nil {
		s.writeError(w, err, "Error loading data", table)
		return
	}
	s.writeOK(w, "", table)
}

func (s *server) saveItem(w http.ResponseWriter, r *http.Request) {
	var form management.ItemForm
	if err := decodeJSON(r, &form); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	msg, table, err := sync.Save(r.Context(), form)
	if err != nil {
		s.writeError(w, err, "Error saving item", nil)
		return
	}
	s.writeOK(w, msg, table)
}

func (s *server) deleteItem(w http.ResponseWriter, r *http.Request) {
	t, err := dataTypeParam(r)
	if err != nil {
		s.writeError(w, err, "Unknown data type", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid id", errBadRequest), "Invalid item id", nil)
		return
	}
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	msg, _, err := sync.Delete(r.Context(), t, id)
	if err != nil {
		s.writeError(w, err, "Error deleting item", nil)
		return
	}
	s.writeOK(w, msg, sync.State())
}

func (s *server) exportTable(w http.ResponseWriter, r *http.Request) {
	t, err := dataTypeParam(r)
	if err != nil {
		s.writeError(w, err, "Unknown data type", nil)
		return
	}
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	table, err := sync.Refresh(r.Context(), t)
	if err != nil {
		s.writeError(w, err, "Error exporting data", nil)
		return
	}

	var buf bytes.Buffer
	if err := management.ExportXLSX(&buf, table); err != nil {
		s.writeError(w, err, "Error exporting data", nil)
		return
	}
	filename := fmt.Sprintf("%s_%s.xlsx", t, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(buf.Bytes())
}

func (s *server) importTable(w http.ResponseWriter, r *http.Request) {
	t, err := dataTypeParam(r)
	if err != nil {
		s.writeError(w, err, "Unknown data type", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), "Invalid upload", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: file is required", errBadRequest), "Invalid upload", nil)
		return
	}
	defer file.Close()

	rows, err := management.ReadRows(file, header.Filename)
	if err != nil {
		s.writeError(w, err, "Invalid spreadsheet", nil)
		return
	}
	sync, ok := s.synchronizer(w, r)
	if !ok {
		return
	}
	report, err := sync.Import(r.Context(), t, rows)
	if err != nil {
		s.writeError(w, err, "Import failed", report)
		return
	}
	s.writeOK(w, fmt.Sprintf("Imported %d of %d rows", report.Added, report.Added+report.Failed), report)
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id", errBadRequest)
	}
	return id, nil
}

func (s *server) saveUser(w http.ResponseWriter, r *http.Request) {
	var form usermgmt.UserForm
	if err := decodeJSON(r, &form); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	sess := s.session(w, r)
	msg, err := sess.users.SaveUser(r.Context(), form)
	if err != nil {
		s.writeError(w, err, "Error saving user", nil)
		return
	}
	s.writeOK(w, msg, nil)
}

func (s *server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.writeError(w, err, "Invalid user id", nil)
		return
	}
	sess := s.session(w, r)
	msg, err := sess.users.DeleteUser(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "Error deleting user", nil)
		return
	}
	s.writeOK(w, msg, nil)
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var change usermgmt.PasswordChange
	if err := decodeJSON(r, &change); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	sess := s.session(w, r)
	msg, err := sess.users.ChangePassword(r.Context(), change)
	if err != nil {
		s.writeError(w, err, "Error changing password", nil)
		return
	}
	s.writeOK(w, msg, nil)
}

func (s *server) userBranches(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.writeError(w, err, "Invalid user id", nil)
		return
	}
	sess := s.session(w, r)
	a, err := sess.users.Branches(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "Error loading branches", nil)
		return
	}
	s.writeOK(w, "", a)
}

func (s *server) addUserBranch(w http.ResponseWriter, r *http.Request) {
	s.manageUserBranch(w, r, (*usermgmt.Service).AddBranch)
}

func (s *server) removeUserBranch(w http.ResponseWriter, r *http.Request) {
	s.manageUserBranch(w, r, (*usermgmt.Service).RemoveBranch)
}

type branchMutation func(svc *usermgmt.Service, ctx context.Context, userID int64, branch string) (string, usermgmt.Assignments, error)

func (s *server) manageUserBranch(w http.ResponseWriter, r *http.Request, mutate branchMutation) {
	id, err := userIDParam(r)
	if err != nil {
		s.writeError(w, err, "Invalid user id", nil)
		return
	}
	var req branchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	sess := s.session(w, r)
	msg, a, err := mutate(sess.users, r.Context(), id, req.Branch)
	if err != nil {
		s.writeError(w, err, "Error managing branch", nil)
		return
	}
	s.writeOK(w, msg, a)
}
