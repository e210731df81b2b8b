package backend

import (
	"context"
	"strconv"
)

type UserRequest struct {
	Action      string `json:"action"`
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	CompanyCode string `json:"company_code"`
	Password    string `json:"password,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
}

type UserBranchRequest struct {
	UserID     int64  `json:"user_id"`
	Action     string `json:"action"`
	BranchName string `json:"branch_name"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UserBranches struct {
	Assigned []string
	All      []string
}

func (c *Client) ManageUser(ctx context.Context, req UserRequest) (string, error) {
	result, err := c.postJSON(ctx, "/manage_user", req)
	if err != nil {
		return "", err
	}
	return result.Get("message").String(), nil
}

func (c *Client) ManageUserBranches(ctx context.Context, req UserBranchRequest) (string, error) {
	result, err := c.postJSON(ctx, "/manage_user_branches", req)
	if err != nil {
		return "", err
	}
	return result.Get("message").String(), nil
}

func (c *Client) UserBranches(ctx context.Context, userID int64) (UserBranches, error) {
	result, err := c.get(ctx, "/get_user_branches/"+strconv.FormatInt(userID, 10), nil)
	if err != nil {
		return UserBranches{}, err
	}
	assigned, err := stringArray(result.Get("user_branches"))
	if err != nil {
		return UserBranches{}, err
	}
	all, err := stringArray(result.Get("all_branches"))
	if err != nil {
		return UserBranches{}, err
	}
	return UserBranches{Assigned: assigned, All: all}, nil
}

func (c *Client) ChangeAdminPassword(ctx context.Context, req PasswordChangeRequest) (string, error) {
	result, err := c.postJSON(ctx, "/change_admin_password", req)
	if err != nil {
		return "", err
	}
	return result.Get("message").String(), nil
}
