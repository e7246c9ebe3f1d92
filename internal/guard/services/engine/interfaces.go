package engine

import (
	"context"

	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/repos/store"
)

// Storage is the slice of the relational store the engine needs for its
// one-time startup hydration. The engine never queries the store again.
type Storage interface {
	FindAllIndexed(q store.Query, where store.Row) (map[int64]store.Row, error)
	FindAsMap(q store.Query, keyCol string, valueCols []string, where store.Row) (map[any]any, error)
}

// RequestRecorder receives fire-and-forget recording work in learning mode.
type RequestRecorder interface {
	Record(ctx context.Context, req domain.Request)
}

// UI is the presentation collaborator. Calls are dispatched asynchronously,
// never on the decision path.
type UI interface {
	// RegisterMainframe notifies of a page change.
	RegisterMainframe(req domain.Request)
	// SetDefault resets the per-tab indicator to its default state.
	SetDefault(req domain.Request)
	// RegisterDisallowedOrUnknown reports a request that was blocked or
	// entirely unknown, for the user to inspect.
	RegisterDisallowedOrUnknown(req domain.Request)
	// SetWarning switches the per-tab indicator to its warning state.
	SetWarning(req domain.Request)
}

// NopUI discards all UI notifications.
type NopUI struct{}

func (NopUI) RegisterMainframe(domain.Request)           {}
func (NopUI) SetDefault(domain.Request)                  {}
func (NopUI) RegisterDisallowedOrUnknown(domain.Request) {}
func (NopUI) SetWarning(domain.Request)                  {}
