// Package recorder turns observed requests into durable site and resource
// records, exactly once per natural key, consulting the reputation service
// only for newly discovered records. It runs entirely off the synchronous
// decision path.
package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/haukened/surfguard/internal/guard/common/bus"
	"github.com/haukened/surfguard/internal/guard/common/clock"
	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/common/urlutil"
	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/repos/store"
)

// Recorder observes requests and persists what it learns.
type Recorder struct {
	storage    Storage
	reputation ReputationChecker
	tabinfo    TabInfo
	clock      clock.Clock
	logger     log.Logger

	// typeIDs caches the static resource-type catalog (tag -> types.id).
	typeIDs map[domain.ResourceType]int64

	mu sync.Mutex
	// tabs maps a tab id to the site name currently active in it.
	tabs map[int]string

	newSites     *bus.Topic[domain.Site]
	newResources *bus.Topic[ResourceEvent]
}

// Options configures a Recorder.
type Options struct {
	Storage    Storage
	Reputation ReputationChecker
	TabInfo    TabInfo
	Clock      clock.Clock
	Logger     log.Logger
}

// New constructs a Recorder and loads the resource-type catalog.
func New(opts Options) (*Recorder, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	types, err := opts.Storage.FindAsMap(store.Table(store.TableTypes), "tag", []string{"id"}, nil)
	if err != nil {
		return nil, fmt.Errorf("load resource type catalog: %w", err)
	}
	typeIDs := make(map[domain.ResourceType]int64, len(types))
	for tag, id := range types {
		t, ok := tag.(string)
		if !ok {
			continue
		}
		typeIDs[domain.ResourceType(t)] = store.Row{"id": id}.Int64("id")
	}

	return &Recorder{
		storage:      opts.Storage,
		reputation:   opts.Reputation,
		tabinfo:      opts.TabInfo,
		clock:        opts.Clock,
		logger:       opts.Logger,
		typeIDs:      typeIDs,
		tabs:         make(map[int]string),
		newSites:     bus.New[domain.Site](),
		newResources: bus.New[ResourceEvent](),
	}, nil
}

// NewSites is the topic carrying newly persisted sites.
func (r *Recorder) NewSites() *bus.Topic[domain.Site] { return r.newSites }

// NewResources is the topic carrying newly persisted resources.
func (r *Recorder) NewResources() *bus.Topic[ResourceEvent] { return r.newResources }

// Record processes one observed request. Requests without a valid tab
// association and requests from private tabs are skipped, never persisted.
func (r *Recorder) Record(ctx context.Context, req domain.Request) {
	if !req.FromHostTab() {
		// Negative tab ids are host-internal traffic.
		r.logger.Warn(map[string]any{"tab": req.TabID, "url": req.URL},
			"dropping observation without valid tab")
		return
	}

	if r.tabinfo != nil {
		state, err := r.tabinfo.Tab(ctx, req.TabID)
		if err != nil {
			r.logger.Debug(map[string]any{"tab": req.TabID, "error": err},
				"dropping observation, tab state unavailable")
			return
		}
		if state.Incognito {
			return
		}
	}

	if req.Type == domain.ResourceTypeMainFrame {
		r.recordSite(ctx, req)
		return
	}
	r.recordResource(ctx, req, 0)
}

// recordSite handles a top-level navigation: it refreshes the tab context
// and persists the site if it is new or still unchecked.
func (r *Recorder) recordSite(ctx context.Context, req domain.Request) {
	name := urlutil.Host(req.URL)
	if name == "" {
		r.logger.Error(map[string]any{"url": req.URL}, "could not derive site from request")
		return
	}

	r.mu.Lock()
	r.tabs[req.TabID] = name
	r.mu.Unlock()

	existing, err := r.storage.FindFirst(store.Table(store.TableSites), store.Row{"domain": name})
	if err != nil {
		// Treated as no data; worst case is a redundant reputation check.
		r.logger.Error(map[string]any{"error": err, "site": name}, "site existence check failed")
	}
	if existing != nil && existing["sb_lookup"] != nil {
		// Already fully processed. Periodic re-checks are future work.
		return
	}

	state, checkedAt := r.checkReputation(ctx, req.URL)

	if existing == nil {
		r.insertSite(name, state, checkedAt)
		return
	}
	r.updateSite(name, existing, state, checkedAt)
}

func (r *Recorder) insertSite(name string, state domain.BlockState, checkedAt string) {
	now := store.FormatTime(r.clock.Now())
	row := store.Row{
		"domain":    name,
		"blocked":   state.SQLValue(),
		"discovery": now,
		"sb_lookup": nilIfEmpty(checkedAt),
	}

	id, affected, err := r.storage.Insert(store.TableSites, row, store.ConflictIgnore)
	if err != nil {
		r.logger.Error(map[string]any{"error": err, "site": name}, "could not persist site")
		return
	}
	if affected == 0 {
		// A concurrent identical discovery won the insert; it emits the event.
		return
	}

	site := domain.Site{
		ID:                  id,
		Name:                name,
		Blocked:             state,
		FirstSeen:           store.ParseTime(now),
		LastReputationCheck: store.ParseTime(checkedAt),
	}
	if state == domain.BlockStateBlocked {
		r.logger.Warn(map[string]any{"site": name}, "bad site detected")
	}
	r.newSites.Publish(site)
}

// updateSite records a late verdict on a known-but-unchecked site. No
// event: the mirror learned the site when it was first inserted. An
// explicitly blocked site never reverts via reputation alone.
func (r *Recorder) updateSite(name string, existing store.Row, state domain.BlockState, checkedAt string) {
	if checkedAt == "" {
		return
	}
	set := store.Row{"sb_lookup": checkedAt}
	if domain.BlockStateFromSQL(existing["blocked"]) != domain.BlockStateBlocked {
		set["blocked"] = state.SQLValue()
	}
	if _, err := r.storage.Update(store.TableSites, store.Row{"domain": name}, set); err != nil {
		r.logger.Error(map[string]any{"error": err, "site": name}, "could not update site verdict")
	}
}

// recordResource handles a sub-request, attributing it to the tab's site.
// When the tab context is missing (recorder restarted, or content loaded
// before its navigation was seen) it synthesizes one from host tab state,
// bounded to a single retry.
func (r *Recorder) recordResource(ctx context.Context, req domain.Request, depth int) {
	r.mu.Lock()
	siteName, ok := r.tabs[req.TabID]
	r.mu.Unlock()

	if !ok {
		if depth > 0 || r.tabinfo == nil {
			r.logger.Warn(map[string]any{"tab": req.TabID, "url": req.URL},
				"dropping observation, no site context for tab")
			return
		}
		state, err := r.tabinfo.Tab(ctx, req.TabID)
		if err != nil {
			r.logger.Warn(map[string]any{"tab": req.TabID, "error": err},
				"dropping observation, could not synthesize tab context")
			return
		}
		r.recordSite(ctx, domain.Request{
			URL:   state.URL,
			Type:  domain.ResourceTypeMainFrame,
			TabID: req.TabID,
		})
		r.recordResource(ctx, req, depth+1)
		return
	}

	typeID, ok := r.typeIDs[req.Type]
	if !ok {
		r.logger.Warn(map[string]any{"type": string(req.Type)}, "uncataloged resource type")
		return
	}

	normalized := urlutil.Normalize(req.URL)
	existing, err := r.storage.FindFirst(store.Table(store.TableResources),
		store.Row{"url": normalized, "type_id": typeID})
	if err != nil {
		r.logger.Error(map[string]any{"error": err, "url": normalized}, "resource existence check failed")
	}
	if existing != nil && existing["sb_lookup"] != nil {
		return
	}

	state, checkedAt := r.checkReputation(ctx, req.URL)

	if existing == nil {
		r.insertResource(req.Type, typeID, normalized, siteName, state, checkedAt)
		return
	}
	r.updateResource(existing, normalized, typeID, siteName, state, checkedAt)
}

func (r *Recorder) insertResource(typ domain.ResourceType, typeID int64, normalized, siteName string, state domain.BlockState, checkedAt string) {
	now := store.FormatTime(r.clock.Now())
	row := store.Row{
		"url":       normalized,
		"type_id":   typeID,
		"blocked":   state.SQLValue(),
		"discovery": now,
		"sb_lookup": nilIfEmpty(checkedAt),
	}

	id, affected, err := r.storage.Insert(store.TableResources, row, store.ConflictIgnore)
	if err != nil {
		r.logger.Error(map[string]any{"error": err, "url": normalized}, "could not persist resource")
		return
	}
	if affected == 0 {
		return
	}

	resource := domain.Resource{
		ID:                  id,
		URL:                 normalized,
		Type:                typ,
		Blocked:             state,
		FirstSeen:           store.ParseTime(now),
		LastReputationCheck: store.ParseTime(checkedAt),
	}
	if state == domain.BlockStateBlocked {
		r.logger.Warn(map[string]any{"url": normalized}, "bad resource detected")
	}
	r.newResources.Publish(ResourceEvent{Resource: resource, SiteName: siteName})

	r.linkResource(id, siteName, now)
}

// updateResource records a late verdict on a known-but-unchecked resource.
func (r *Recorder) updateResource(existing store.Row, normalized string, typeID int64, siteName string, state domain.BlockState, checkedAt string) {
	if checkedAt != "" {
		set := store.Row{"sb_lookup": checkedAt}
		if domain.BlockStateFromSQL(existing["blocked"]) != domain.BlockStateBlocked {
			set["blocked"] = state.SQLValue()
		}
		_, err := r.storage.Update(store.TableResources,
			store.Row{"url": normalized, "type_id": typeID}, set)
		if err != nil {
			r.logger.Error(map[string]any{"error": err, "url": normalized}, "could not update resource verdict")
		}
	}
	// The resource may have reappeared under a different site.
	r.linkResource(existing.Int64("id"), siteName, store.FormatTime(r.clock.Now()))
}

// linkResource inserts the site-resource edge. Failures are logged, not
// retried, and never roll back the resource insert: an unlinked resource
// merely degrades to domain-unknown in decisioning.
func (r *Recorder) linkResource(resourceID int64, siteName, discoveredAt string) {
	site, err := r.storage.FindFirst(store.Table(store.TableSites), store.Row{"domain": siteName})
	if err != nil || site == nil {
		r.logger.Error(map[string]any{"error": err, "site": siteName, "resource": resourceID},
			"could not associate resource to site")
		return
	}
	siteID := site.Int64("id")

	link, err := r.storage.FindFirst(store.Table(store.TableLinks),
		store.Row{"content_id": resourceID, "tld_id": siteID})
	if err == nil && link != nil {
		return
	}

	_, _, err = r.storage.Insert(store.TableLinks, store.Row{
		"content_id": resourceID,
		"tld_id":     siteID,
		"discovery":  discoveredAt,
	}, store.ConflictIgnore)
	if err != nil {
		r.logger.Error(map[string]any{"error": err, "site": siteName, "resource": resourceID},
			"could not persist site-resource link")
	}
}

// checkReputation maps a verdict onto the stored tristate plus the lookup
// timestamp to record ("" when the verdict was unknown, keeping the record
// re-checkable).
func (r *Recorder) checkReputation(ctx context.Context, rawURL string) (domain.BlockState, string) {
	if r.reputation == nil {
		return domain.BlockStateUnknown, ""
	}
	verdict, err := r.reputation.Check(ctx, rawURL)
	if err != nil {
		r.logger.Error(map[string]any{"error": err, "url": rawURL}, "reputation check failed")
	}
	if verdict == domain.VerdictUnknown {
		return domain.BlockStateUnknown, ""
	}
	return verdict.BlockState(), store.FormatTime(r.clock.Now())
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
