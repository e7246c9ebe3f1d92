package domain

import (
	"fmt"
	"strings"
	"time"
)

// Site is the top-level site identity a navigation belongs to, unique by
// name. Created on first observation of a top-level navigation; never
// deleted during normal operation.
type Site struct {
	ID   int64
	Name string
	// Blocked is sticky once explicitly set to blocked; reputation lookups
	// alone never revert it.
	Blocked   BlockState
	FirstSeen time.Time
	// LastReputationCheck is zero while the site has never been checked.
	LastReputationCheck time.Time
}

// NewSite constructs a Site pending persistence (ID unset).
func NewSite(name string, firstSeen time.Time) (Site, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Site{}, fmt.Errorf("site name must not be empty")
	}
	return Site{Name: name, Blocked: BlockStateUnknown, FirstSeen: firstSeen}, nil
}

// Checked reports whether a reputation verdict was ever recorded.
func (s Site) Checked() bool {
	return !s.LastReputationCheck.IsZero()
}

// Resource is an individual sub-request loaded in the context of a Site,
// unique by (URL, Type).
type Resource struct {
	ID        int64
	URL       string
	Type      ResourceType
	Blocked   BlockState
	FirstSeen time.Time
	// LastReputationCheck is zero while the resource has never been checked.
	LastReputationCheck time.Time
}

// NewResource constructs a Resource pending persistence (ID unset).
// The URL is expected to be normalized already.
func NewResource(url string, typ ResourceType, firstSeen time.Time) (Resource, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Resource{}, fmt.Errorf("resource url must not be empty")
	}
	if !typ.Valid() {
		return Resource{}, fmt.Errorf("unsupported resource type: %q", typ)
	}
	return Resource{URL: url, Type: typ, Blocked: BlockStateUnknown, FirstSeen: firstSeen}, nil
}

// Checked reports whether a reputation verdict was ever recorded.
func (r Resource) Checked() bool {
	return !r.LastReputationCheck.IsZero()
}

// SiteResourceLink records which site first introduced a resource. A
// resource may later be linked to multiple sites, one link per observation.
type SiteResourceLink struct {
	ResourceID int64
	SiteID     int64
	FirstSeen  time.Time
}
