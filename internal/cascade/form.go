package cascade

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/metrics"
	"github.com/sirupsen/logrus"
)

type SubmitResult struct {
	Message string `json:"message"`
}

// Validate reports the first entry that is missing a required field.
func (c *Controller) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Controller) validateLocked() error {
	for _, idx := range c.order {
		e := c.entries[idx]
		var missing []string
		for _, f := range []struct {
			name  string
			value string
		}{
			{"branch", e.branch},
			{"shop_code", e.shopCode},
			{"category", e.category},
			{"model", e.model},
			{"display_type", e.displayType},
		} {
			if strings.TrimSpace(f.value) == "" {
				missing = append(missing, fmt.Sprintf("%s_%d", f.name, idx))
			}
		}
		if len(missing) > 0 {
			return &ValidationError{Entry: idx, Fields: missing, Message: RequiredFieldsMessage}
		}
		for _, f := range e.files() {
			if len(f.Data) == 0 {
				return &ValidationError{
					Entry:   idx,
					Fields:  []string{fmt.Sprintf("images_%d", idx)},
					Message: fmt.Sprintf("File %q could not be read. Please attach it again.", f.Name),
				}
			}
		}
	}
	return nil
}

// EncodeForm writes every entry as index-suffixed multipart fields.
func (c *Controller) EncodeForm() ([]byte, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encodeLocked()
}

func (c *Controller) encodeLocked() ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, idx := range c.order {
		e := c.entries[idx]
		fields := []struct {
			name  string
			value string
		}{
			{"branch", e.branch},
			{"shop_code", e.shopCode},
			{"category", e.category},
			{"model", e.model},
			{"display_type", e.displayType},
		}
		for _, f := range fields {
			if err := writer.WriteField(fmt.Sprintf("%s_%d", f.name, idx), strings.TrimSpace(f.value)); err != nil {
				return nil, "", err
			}
		}
		for _, material := range e.selectedMaterials() {
			if err := writer.WriteField(checklistName(idx), material); err != nil {
				return nil, "", err
			}
		}
		for _, f := range e.files() {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images_%d"; filename=%q`, idx, f.Name))
			h.Set("Content-Type", normalizeMIME(f.ContentType))
			part, err := writer.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(f.Data); err != nil {
				return nil, "", err
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// Submit validates the form, posts it and on success resets it. Nothing is
// sent when validation fails.
func (c *Controller) Submit(ctx context.Context) (SubmitResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SubmitResult{}, ErrClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return SubmitResult{}, ErrSubmitInProgress
	}
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return SubmitResult{}, err
	}
	body, contentType, err := c.encodeLocked()
	if err != nil {
		c.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("encode form: %w", err)
	}
	c.submitting = true
	action := c.submitAction
	c.mu.Unlock()

	msg, err := c.backend.SubmitEntries(ctx, action, contentType, bytes.NewReader(body))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		c.log.WithError(err).Warn("data entry submission failed")
		return SubmitResult{Message: backend.UserMessage(err, SubmitFailureMessage)}, err
	}
	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	c.log.WithFields(logrus.Fields{"entries": len(c.order), "bytes": len(body), "reply": msg}).Info("data entry submitted")
	if !c.closed {
		c.resetLocked()
	}
	return SubmitResult{Message: SubmitSuccessMessage}, nil
}
