package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

type Branch struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// DynamicData fetches the option list for dataType. param names the query
// parameter carrying the parent selection and may be empty.
func (c *Client) DynamicData(ctx context.Context, dataType, param, value string) ([]string, error) {
	query := url.Values{}
	if param != "" {
		query.Set(param, value)
	}
	result, err := c.get(ctx, "/get_dynamic_data/"+url.PathEscape(dataType), query)
	if err != nil {
		return nil, err
	}
	return stringArray(result.Get("data"))
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	return c.DynamicData(ctx, "categories", "", "")
}

func (c *Client) Models(ctx context.Context, category string) ([]string, error) {
	return c.DynamicData(ctx, "models", "category", category)
}

func (c *Client) DisplayTypes(ctx context.Context, category string) ([]string, error) {
	return c.DynamicData(ctx, "display_types", "category", category)
}

func (c *Client) PopMaterials(ctx context.Context, model string) ([]string, error) {
	return c.DynamicData(ctx, "pop_materials", "model", model)
}

func (c *Client) SearchBranches(ctx context.Context, term string) ([]Branch, error) {
	result, err := c.get(ctx, "/get_branches", url.Values{"search": {term}})
	if err != nil {
		return nil, err
	}
	list := result.Get("branches")
	if list.Exists() && !list.IsArray() {
		return nil, fmt.Errorf("%w: branches is not a list", ErrMalformed)
	}
	branches := make([]Branch, 0, len(list.Array()))
	for _, item := range list.Array() {
		name := strings.TrimSpace(item.Get("name").String())
		if name == "" {
			continue
		}
		branches = append(branches, Branch{Name: name, Code: strings.TrimSpace(item.Get("code").String())})
	}
	return branches, nil
}

func (c *Client) BranchByCode(ctx context.Context, code string) (Branch, error) {
	result, err := c.get(ctx, "/get_branch_by_code", url.Values{"code": {code}})
	if err != nil {
		return Branch{}, err
	}
	branch := result.Get("branch")
	if !branch.IsObject() {
		return Branch{}, fmt.Errorf("%w: branch is missing", ErrMalformed)
	}
	return Branch{
		Name: strings.TrimSpace(branch.Get("name").String()),
		Code: strings.TrimSpace(branch.Get("code").String()),
	}, nil
}
