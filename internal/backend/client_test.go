package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", RetryMax: 2})
}

func TestDynamicData_Models(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_dynamic_data/models", r.URL.Path)
		assert.Equal(t, "OLED", r.URL.Query().Get("category"))
		_, _ = io.WriteString(w, `{"success":true,"data":["S95F","S90F","S85F"]}`)
	})

	models, err := c.Models(context.Background(), "OLED")
	require.NoError(t, err)
	assert.Equal(t, []string{"S95F", "S90F", "S85F"}, models)
}

func TestDynamicData_CategoriesSendsNoQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = io.WriteString(w, `{"success":true,"data":["OLED","QLED"]}`)
	})

	categories, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"OLED", "QLED"}, categories)
}

func TestDecodeEnvelope_LogicalFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success":false,"message":"Category already exists"}`)
	})

	_, err := c.ManageData(context.Background(), ManageRequest{Action: "add", Type: "categories", Name: "OLED"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Category already exists", apiErr.Message)
	assert.Equal(t, "Category already exists", UserMessage(err, "fallback"))
}

func TestDecodeEnvelope_MissingSuccess(t *testing.T) {
	_, err := decodeEnvelope(http.StatusOK, []byte(`{"data":[]}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = decodeEnvelope(http.StatusOK, []byte(`<html>`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = decodeEnvelope(http.StatusBadGateway, []byte(`<html>`))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestGet_RetriesUnavailable(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":["A"]}`)
	})

	got, err := c.PopMaterials(context.Background(), "Q8F")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGet_DoesNotRetryLogicalFailure(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success":false,"message":"db down"}`)
	})

	_, err := c.Categories(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPost_NotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ManageData(context.Background(), ManageRequest{Action: "delete", Type: "models", ID: 4})
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWrites_NotBoundByReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, `{"success":true,"message":"saved"}`)
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})

	msg, err := c.SubmitEntries(context.Background(), "", "multipart/form-data; boundary=x", strings.NewReader("--x--"))
	require.NoError(t, err)
	assert.Equal(t, "saved", msg)

	_, err = c.Categories(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestWrites_HonorWriteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, WriteTimeout: 100 * time.Millisecond})

	_, err := c.ManageData(context.Background(), ManageRequest{Action: "delete", Type: "models", ID: 4})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestManageData_SendsNumericIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "add", body["action"])
		assert.Equal(t, "pop_materials", body["type"])
		assert.Equal(t, float64(7), body["model_id"])
		assert.Equal(t, float64(2), body["category_id"])
		_, hasID := body["id"]
		assert.False(t, hasID)
		_, _ = io.WriteString(w, `{"success":true,"message":"POP material added"}`)
	})

	msg, err := c.ManageData(context.Background(), ManageRequest{Action: "add", Type: "pop_materials", Name: "Wobbler", CategoryID: 2, ModelID: 7})
	require.NoError(t, err)
	assert.Equal(t, "POP material added", msg)
}

func TestWithSession_ForwardsCookie(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		require.NoError(t, err)
		assert.Equal(t, "abc123", cookie.Value)
		_, _ = io.WriteString(w, `{"success":true,"branches":[{"name":"Gangnam","code":"G01"},{"name":" ","code":"X"}]}`)
	})

	branches, err := c.WithSession("abc123").SearchBranches(context.Background(), "Gang")
	require.NoError(t, err)
	assert.Equal(t, []Branch{{Name: "Gangnam", Code: "G01"}}, branches)
}

func TestBranchByCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "G01", r.URL.Query().Get("code"))
		_, _ = io.WriteString(w, `{"success":true,"branch":{"name":"Gangnam","code":"G01"}}`)
	})

	branch, err := c.BranchByCode(context.Background(), "G01")
	require.NoError(t, err)
	assert.Equal(t, Branch{Name: "Gangnam", Code: "G01"}, branch)
}

func TestManagementData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_management_data/models", r.URL.Path)
		assert.Equal(t, "OLED", r.URL.Query().Get("category"))
		_, hasModel := r.URL.Query()["model"]
		assert.False(t, hasModel)
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":3,"name":"S95F","category":"OLED","created_at":"2024-05-01 10:00:00"}]}`)
	})

	rows, err := c.ManagementData(context.Background(), "models", "OLED", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ManagementRow{ID: 3, Name: "S95F", Category: "OLED", CreatedAt: "2024-05-01 10:00:00"}, rows[0])
}

func TestUserBranches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_user_branches/9", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"user_branches":["A"],"all_branches":["A","B"]}`)
	})

	got, err := c.UserBranches(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, UserBranches{Assigned: []string{"A"}, All: []string{"A", "B"}}, got)
}

func TestSubmitEntries_DefaultsAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultSubmitPath, r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		_, _ = io.WriteString(w, `{"success":true,"message":"saved"}`)
	})

	msg, err := c.SubmitEntries(context.Background(), "", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "saved", msg)
}
