package hookhttp

import (
	"context"
	"fmt"
	"sync"

	"github.com/haukened/surfguard/internal/guard/services/recorder"
)

// TabRegistry tracks the host's reported tab states. It implements the
// recorder's TabInfo collaborator for out-of-process hosts, which report
// navigations and closures through the tab endpoints.
type TabRegistry struct {
	mu   sync.RWMutex
	tabs map[int]recorder.TabState
}

// NewTabRegistry returns an empty registry.
func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[int]recorder.TabState)}
}

// Tab implements recorder.TabInfo.
func (t *TabRegistry) Tab(_ context.Context, tabID int) (recorder.TabState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.tabs[tabID]
	if !ok {
		return recorder.TabState{}, fmt.Errorf("no state for tab %d", tabID)
	}
	return state, nil
}

// Put records the current state of a tab.
func (t *TabRegistry) Put(tabID int, state recorder.TabState) {
	t.mu.Lock()
	t.tabs[tabID] = state
	t.mu.Unlock()
}

// Drop discards a closed tab's state.
func (t *TabRegistry) Drop(tabID int) {
	t.mu.Lock()
	delete(t.tabs, tabID)
	t.mu.Unlock()
}
