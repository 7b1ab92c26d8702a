// Package widget defines the widget contract and a registry of fetchable
// widget types. Each widget pulls data from one upstream API and emits a
// uniform WidgetData payload.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/internal/metadata"
	"github.com/diaorui/fathom-deck/pkg/types"
)

// Env carries the shared collaborators a widget may use while fetching.
type Env struct {
	Fetcher  fetcher.Doer
	Metadata *metadata.Extractor
	Logger   *slog.Logger
}

// Widget fetches one upstream source and produces renderable data.
type Widget interface {
	Type() string
	Fetch(ctx context.Context) (*types.WidgetData, error)
}

// Constructor builds a widget instance from its declared title and params.
type Constructor func(env Env, title string, params Params) (Widget, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a widget type to the registry. Registering the same type
// twice is a programming error and panics.
func Register(widgetType string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[widgetType]; dup {
		panic(fmt.Sprintf("widget: type %q registered twice", widgetType))
	}
	registry[widgetType] = ctor
}

// New instantiates a registered widget type.
func New(widgetType string, env Env, title string, params Params) (Widget, error) {
	registryMu.RLock()
	ctor, ok := registry[widgetType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("widget: unknown type %q (known: %v)", widgetType, Types())
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	if params == nil {
		params = Params{}
	}
	return ctor(env, title, params)
}

// Types lists the registered widget types in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
