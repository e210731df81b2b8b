package clientapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/cascade"
	"github.com/phillip-england/popsuite/internal/management"
	"github.com/phillip-england/popsuite/internal/usermgmt"
)

// envelope mirrors the backend's response shape so the page handles both
// the same way.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("writeJSON encode error")
	}
}

func (s *server) writeOK(w http.ResponseWriter, message string, data any) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// writeError maps err onto a status and the message a person should see.
// data, when set, lets the page keep rendering what it already has.
func (s *server) writeError(w http.ResponseWriter, err error, fallback string, data any) {
	status, message := errorResponse(err, fallback)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error(fallback)
	}
	s.writeJSON(w, status, envelope{Success: false, Message: message, Data: data})
}

func errorResponse(err error, fallback string) (int, string) {
	var (
		cascadeErr *cascade.ValidationError
		mgmtErr    *management.ValidationError
		userErr    *usermgmt.ValidationError
		apiErr     *backend.APIError
	)
	switch {
	case errors.As(err, &cascadeErr):
		return http.StatusBadRequest, cascadeErr.Message
	case errors.As(err, &mgmtErr):
		return http.StatusBadRequest, mgmtErr.Message
	case errors.As(err, &userErr):
		return http.StatusBadRequest, userErr.Message
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusUnprocessableEntity
		}
		return status, backend.UserMessage(err, fallback)
	case errors.Is(err, cascade.ErrUnknownEntry), errors.Is(err, cascade.ErrUnknownAttachment):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, cascade.ErrSubmitInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, cascade.ErrInvalidOption), errors.Is(err, cascade.ErrNoCategory),
		errors.Is(err, cascade.ErrNoModel), errors.Is(err, management.ErrUnknownCategory),
		errors.Is(err, management.ErrUnknownModel), errors.Is(err, management.ErrNoCategory),
		errors.Is(err, management.ErrModelFilter), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, backend.ErrTransport), errors.Is(err, backend.ErrMalformed):
		return http.StatusBadGateway, fallback
	case errors.Is(err, cascade.ErrClosed):
		return http.StatusGone, "Session expired, please reload the page"
	default:
		return http.StatusInternalServerError, fallback
	}
}

var errBadRequest = errors.New("bad request")

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return value, nil
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}
