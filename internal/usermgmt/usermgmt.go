// Package usermgmt validates and sends user, password and branch
// permission changes.
package usermgmt

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/metrics"
	"github.com/phillip-england/popsuite/internal/security"
)

const (
	NoBranchesAssigned  = "No branches assigned"
	AllBranchesAssigned = "All branches already assigned"
	SelectBranchPrompt  = "Select a branch to add"
)

// ValidationError is a form problem caught before any request is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

type Source interface {
	ManageUser(ctx context.Context, req backend.UserRequest) (string, error)
	ManageUserBranches(ctx context.Context, req backend.UserBranchRequest) (string, error)
	UserBranches(ctx context.Context, userID int64) (backend.UserBranches, error)
	ChangeAdminPassword(ctx context.Context, req backend.PasswordChangeRequest) (string, error)
}

type UserForm struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CompanyCode string `json:"companyCode"`
	Password    string `json:"password"`
	IsAdmin     bool   `json:"isAdmin"`
}

// Request validates the form. An id makes it an edit, in which case a
// blank password leaves the stored one unchanged.
func (f UserForm) Request() (backend.UserRequest, error) {
	req := backend.UserRequest{
		Action:      "add",
		Name:        strings.TrimSpace(f.Name),
		CompanyCode: strings.TrimSpace(f.CompanyCode),
		Password:    f.Password,
		IsAdmin:     f.IsAdmin,
	}
	if raw := strings.TrimSpace(f.ID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return backend.UserRequest{}, invalid("Invalid user id")
		}
		req.Action = "edit"
		req.ID = id
	}
	if req.Name == "" || req.CompanyCode == "" {
		return backend.UserRequest{}, invalid("Please fill in all required fields")
	}
	if req.Action == "add" && req.Password == "" {
		return backend.UserRequest{}, invalid("Password is required for new users")
	}
	if req.Password != "" && security.ValidatePassword(req.Password) != nil {
		return backend.UserRequest{}, invalid("Password must be at least 6 characters long")
	}
	return req, nil
}

type PasswordChange struct {
	Current string `json:"currentPassword"`
	New     string `json:"newPassword"`
	Confirm string `json:"confirmPassword"`
}

func (p PasswordChange) Request() (backend.PasswordChangeRequest, error) {
	if p.Current == "" || p.New == "" || p.Confirm == "" {
		return backend.PasswordChangeRequest{}, invalid("Please fill in all fields")
	}
	if security.ValidatePassword(p.New) != nil {
		return backend.PasswordChangeRequest{}, invalid("New password must be at least 6 characters long")
	}
	if !security.ConfirmMatches(p.New, p.Confirm) {
		return backend.PasswordChangeRequest{}, invalid("New passwords do not match")
	}
	return backend.PasswordChangeRequest{CurrentPassword: p.Current, NewPassword: p.New}, nil
}

// Assignments is the branch panel of one user.
type Assignments struct {
	UserID           int64    `json:"userId"`
	Assigned         []string `json:"assigned"`
	Available        []string `json:"available"`
	AssignedMessage  string   `json:"assignedMessage,omitempty"`
	AvailableMessage string   `json:"availableMessage"`
}

func newAssignments(userID int64, b backend.UserBranches) Assignments {
	assigned := make(map[string]struct{}, len(b.Assigned))
	for _, name := range b.Assigned {
		assigned[name] = struct{}{}
	}
	a := Assignments{
		UserID:    userID,
		Assigned:  append([]string{}, b.Assigned...),
		Available: []string{},
	}
	for _, name := range b.All {
		if _, ok := assigned[name]; !ok {
			a.Available = append(a.Available, name)
		}
	}
	if len(a.Assigned) == 0 {
		a.AssignedMessage = NoBranchesAssigned
	}
	if len(a.Available) == 0 {
		a.AvailableMessage = AllBranchesAssigned
	} else {
		a.AvailableMessage = SelectBranchPrompt
	}
	return a
}

type Service struct {
	src Source
	log logrus.FieldLogger
}

func New(src Source, log logrus.FieldLogger) *Service {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Service{src: src, log: log.WithField("component", "usermgmt")}
}

func (s *Service) SaveUser(ctx context.Context, form UserForm) (string, error) {
	req, err := form.Request()
	if err != nil {
		metrics.MutationsTotal.WithLabelValues("users", "save", metrics.OutcomeInvalid).Inc()
		return "", err
	}
	msg, err := s.src.ManageUser(ctx, req)
	s.record("users", req.Action, err)
	return msg, err
}

func (s *Service) DeleteUser(ctx context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", invalid("Invalid user id")
	}
	msg, err := s.src.ManageUser(ctx, backend.UserRequest{Action: "delete", ID: id})
	s.record("users", "delete", err)
	return msg, err
}

func (s *Service) ChangePassword(ctx context.Context, change PasswordChange) (string, error) {
	req, err := change.Request()
	if err != nil {
		return "", err
	}
	msg, err := s.src.ChangeAdminPassword(ctx, req)
	s.record("admin_password", "change", err)
	return msg, err
}

func (s *Service) Branches(ctx context.Context, userID int64) (Assignments, error) {
	if userID <= 0 {
		return Assignments{}, invalid("Invalid user id")
	}
	b, err := s.src.UserBranches(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user", userID).Warn("load branches failed")
		return Assignments{}, err
	}
	return newAssignments(userID, b), nil
}

// AddBranch grants branch to the user and returns the reloaded panel.
func (s *Service) AddBranch(ctx context.Context, userID int64, branch string) (string, Assignments, error) {
	if strings.TrimSpace(branch) == "" {
		return "", Assignments{}, invalid("Please select a branch to add")
	}
	return s.manageBranch(ctx, userID, "add", branch)
}

func (s *Service) RemoveBranch(ctx context.Context, userID int64, branch string) (string, Assignments, error) {
	if strings.TrimSpace(branch) == "" {
		return "", Assignments{}, invalid("Please select a branch to remove")
	}
	return s.manageBranch(ctx, userID, "remove", branch)
}

func (s *Service) manageBranch(ctx context.Context, userID int64, action, branch string) (string, Assignments, error) {
	if userID <= 0 {
		return "", Assignments{}, invalid("Invalid user id")
	}
	msg, err := s.src.ManageUserBranches(ctx, backend.UserBranchRequest{UserID: userID, Action: action, BranchName: branch})
	s.record("user_branches", action, err)
	if err != nil {
		return "", Assignments{}, err
	}
	a, err := s.Branches(ctx, userID)
	return msg, a, err
}

func (s *Service) record(kind, action string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		var apiErr *backend.APIError
		if !errors.As(err, &apiErr) {
			s.log.WithError(err).WithFields(logrus.Fields{"kind": kind, "action": action}).Error("request failed")
		}
	}
	metrics.MutationsTotal.WithLabelValues(kind, action, outcome).Inc()
}
