package recorder

import (
	"context"

	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/repos/store"
)

// ReputationChecker answers whether a URL's domain is known-bad. An
// unconfigured or failing checker answers unknown.
type ReputationChecker interface {
	Check(ctx context.Context, rawURL string) (domain.Verdict, error)
}

// TabState is the host's view of one browsing tab.
type TabState struct {
	URL       string
	Incognito bool
}

// TabInfo fetches tab state from the host. Used to attribute resource
// requests to their introducing site and to skip private tabs.
type TabInfo interface {
	Tab(ctx context.Context, tabID int) (TabState, error)
}

// Storage is the slice of the relational store the recorder needs.
type Storage interface {
	FindFirst(q store.Query, where store.Row) (store.Row, error)
	FindAsMap(q store.Query, keyCol string, valueCols []string, where store.Row) (map[any]any, error)
	Insert(table string, row store.Row, conflict store.OnConflict) (id int64, affected int64, err error)
	Update(table string, where store.Row, set store.Row) (int64, error)
}

// ResourceEvent is published when a resource is newly persisted. SiteName
// identifies the site whose tab context introduced the resource.
type ResourceEvent struct {
	Resource domain.Resource
	SiteName string
}
