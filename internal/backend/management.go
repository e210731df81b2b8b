package backend

import (
	"context"
	"fmt"
	"net/url"
)

type ManagementRow struct {
	ID        int64
	Name      string
	Category  string
	Model     string
	CreatedAt string
}

type ManageRequest struct {
	Action     string `json:"action"`
	Type       string `json:"type"`
	ID         int64  `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	CategoryID int64  `json:"category_id,omitempty"`
	ModelID    int64  `json:"model_id,omitempty"`
}

// ManagementData lists reference rows of dataType. Empty filters are not
// sent.
func (c *Client) ManagementData(ctx context.Context, dataType, category, model string) ([]ManagementRow, error) {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if model != "" {
		query.Set("model", model)
	}
	result, err := c.get(ctx, "/get_management_data/"+url.PathEscape(dataType), query)
	if err != nil {
		return nil, err
	}
	data := result.Get("data")
	if data.Exists() && !data.IsArray() {
		return nil, fmt.Errorf("%w: data is not a list", ErrMalformed)
	}
	rows := make([]ManagementRow, 0, len(data.Array()))
	for _, item := range data.Array() {
		rows = append(rows, ManagementRow{
			ID:        item.Get("id").Int(),
			Name:      item.Get("name").String(),
			Category:  item.Get("category").String(),
			Model:     item.Get("model").String(),
			CreatedAt: item.Get("created_at").String(),
		})
	}
	return rows, nil
}

// ManageData sends one add, edit or delete and returns the server message.
func (c *Client) ManageData(ctx context.Context, req ManageRequest) (string, error) {
	result, err := c.postJSON(ctx, "/manage_data", req)
	if err != nil {
		return "", err
	}
	return result.Get("message").String(), nil
}
