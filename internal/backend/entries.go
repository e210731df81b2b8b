package backend

import (
	"context"
	"io"
	"strings"
)

const DefaultSubmitPath = "/submit_data"

// SubmitEntries posts an already encoded multipart data-entry form to
// action. It is never retried.
func (c *Client) SubmitEntries(ctx context.Context, action, contentType string, body io.Reader) (string, error) {
	if strings.TrimSpace(action) == "" {
		action = DefaultSubmitPath
	}
	if !strings.HasPrefix(action, "/") {
		action = "/" + action
	}
	result, err := c.post(ctx, action, contentType, body)
	if err != nil {
		return "", err
	}
	return result.Get("message").String(), nil
}
