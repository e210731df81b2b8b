package cascade

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/metrics"
	"github.com/sirupsen/logrus"
)

// FieldKind names a dependent selection field.
type FieldKind int

const (
	Categories FieldKind = iota
	Models
	DisplayTypes
	PopMaterials
)

func (k FieldKind) String() string {
	switch k {
	case Categories:
		return "categories"
	case Models:
		return "models"
	case DisplayTypes:
		return "display_types"
	case PopMaterials:
		return "pop_materials"
	default:
		return "unknown"
	}
}

// param is the query parameter that carries the parent selection.
func (k FieldKind) param() string {
	switch k {
	case Models, DisplayTypes:
		return "category"
	case PopMaterials:
		return "model"
	default:
		return ""
	}
}

// Source serves option lists. *backend.Client satisfies it.
type Source interface {
	DynamicData(ctx context.Context, dataType, param, value string) ([]string, error)
}

// OptionSet is the list of valid values for one field under one parent
// selection. Values are unique and keep the order the server sent them in.
type OptionSet struct {
	kind   FieldKind
	key    string
	values []string
}

func NewOptionSet(kind FieldKind, key string, values []string) OptionSet {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return OptionSet{kind: kind, key: key, values: out}
}

func (o OptionSet) Kind() FieldKind { return o.kind }
func (o OptionSet) Key() string     { return o.key }
func (o OptionSet) Len() int        { return len(o.values) }

func (o OptionSet) Values() []string {
	return append([]string{}, o.values...)
}

func (o OptionSet) Contains(value string) bool {
	for _, v := range o.values {
		if v == value {
			return true
		}
	}
	return false
}

// FetchOptionSet loads the options for kind under key. Categories have no
// parent and ignore key; every other kind returns an empty set for an
// empty key without calling src. Failures are logged and produce an empty
// set.
func FetchOptionSet(ctx context.Context, src Source, kind FieldKind, key string, log logrus.FieldLogger) OptionSet {
	key = strings.TrimSpace(key)
	if kind != Categories && key == "" {
		metrics.OptionFetchesTotal.WithLabelValues(kind.String(), metrics.OutcomeSkipped).Inc()
		return NewOptionSet(kind, key, nil)
	}

	started := time.Now()
	values, err := src.DynamicData(ctx, kind.String(), kind.param(), key)
	metrics.OptionFetchDuration.WithLabelValues(kind.String()).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.OptionFetchesTotal.WithLabelValues(kind.String(), metrics.OutcomeError).Inc()
		entry := log.WithFields(logrus.Fields{"kind": kind.String(), "key": key}).WithError(err)
		var apiErr *backend.APIError
		switch {
		case errors.As(err, &apiErr):
			entry.Warn("backend rejected option fetch")
		case errors.Is(err, context.Canceled):
			entry.Debug("option fetch canceled")
		default:
			entry.Error("option fetch failed")
		}
		return NewOptionSet(kind, key, nil)
	}
	metrics.OptionFetchesTotal.WithLabelValues(kind.String(), metrics.OutcomeOK).Inc()
	return NewOptionSet(kind, key, values)
}
