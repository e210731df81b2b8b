package cascade

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu    sync.Mutex
	data  map[string][]string
	errs  map[string]error
	gates map[string]chan struct{}
	calls []string

	branches    []backend.Branch
	byCode      map[string]backend.Branch
	submitted   []byte
	contentType string
	submitErr   error
	submits     int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		data: map[string][]string{
			"categories:":            {"OLED", "QLED"},
			"models:OLED":            {"S95F", "S90F", "S85F"},
			"models:QLED":            {"Q8F", "Q7F"},
			"display_types:OLED":     {"Wall", "Stand"},
			"display_types:QLED":     {"Endcap"},
			"pop_materials:S95F":     {"Header", "Wobbler"},
			"pop_materials:Q8F":      {"Shelf talker", "Shelf talker", "Price card"},
			"pop_materials:S90F":     {},
			"pop_materials:Q7F":      {"Banner"},
		},
		errs:   map[string]error{},
		gates:  map[string]chan struct{}{},
		byCode: map[string]backend.Branch{},
	}
}

func (f *fakeBackend) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeBackend) DynamicData(ctx context.Context, dataType, param, value string) ([]string, error) {
	key := dataType + ":" + value
	f.mu.Lock()
	f.calls = append(f.calls, key)
	gate := f.gates[key]
	values := append([]string(nil), f.data[key]...)
	err := f.errs[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (f *fakeBackend) SearchBranches(ctx context.Context, term string) ([]backend.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "branches:"+term)
	return append([]backend.Branch(nil), f.branches...), nil
}

func (f *fakeBackend) BranchByCode(ctx context.Context, code string) (backend.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "code:"+code)
	b, ok := f.byCode[code]
	if !ok {
		return backend.Branch{}, &backend.APIError{Status: 404, Message: "Branch not found"}
	}
	return b, nil
}

func (f *fakeBackend) SubmitEntries(ctx context.Context, action, contentType string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.submitted = raw
	f.contentType = contentType
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "saved", nil
}

func (f *fakeBackend) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Update(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) last(kind UpdateKind, entry int) (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].Kind == kind && r.updates[i].Entry == entry {
			return r.updates[i], true
		}
	}
	return Update{}, false
}

func newTestController(t *testing.T, fb *fakeBackend, opts ...func(*Config)) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	cfg := Config{Backend: fb, View: rec, FetchTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := New(cfg)
	t.Cleanup(c.Close)
	require.NoError(t, c.LoadCategories())
	c.Wait()
	return c, rec
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
