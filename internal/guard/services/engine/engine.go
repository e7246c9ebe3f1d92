// Package engine implements the decision core: a synchronous, in-memory
// classifier for intercepted requests. The engine answers from a mirror of
// the persisted state hydrated once at startup and kept current through
// recorder events; it performs no I/O on the decision path.
package engine

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/surfguard/internal/guard/common/bus"
	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/common/tasks"
	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/repos/settings"
	"github.com/haukened/surfguard/internal/guard/repos/store"
	"github.com/haukened/surfguard/internal/guard/services/recorder"
)

const (
	defaultBloomFPRate = 0.001
	minBloomCapacity   = 1024
)

type resourceKey struct {
	url string
	typ domain.ResourceType
}

// Engine rates and decides intercepted requests.
type Engine struct {
	recorder  RequestRecorder
	ui        UI
	tasks     *tasks.Queue
	logger    log.Logger
	whitelist *whitelist

	// allowUnverified keeps the availability-over-blocking policy in armed
	// mode: a known but unverified record defaults to allowed.
	allowUnverified bool
	bloomFPRate     float64

	mu   sync.RWMutex
	mode domain.Mode
	// In-memory mirror of the persisted state.
	sites       map[int64]domain.Site
	siteIDs     map[string]int64
	resources   map[int64]domain.Resource
	resourceIDs map[resourceKey]int64
	// seen is a fast negative filter over known resource URLs; a miss
	// answers "never recorded" without touching the maps' hot entries.
	seen *bloom.BloomFilter
	// tabs maps a tab id to the site currently active in it.
	tabs map[int]int64

	cancels []func()
}

// Options configures an Engine.
type Options struct {
	Settings settings.Store
	Recorder RequestRecorder
	// NewSites and NewResources are the recorder's discovery topics the
	// engine folds into its mirror.
	NewSites     *bus.Topic[domain.Site]
	NewResources *bus.Topic[recorder.ResourceEvent]
	UI           UI
	Tasks        *tasks.Queue
	Logger       log.Logger
	// OwnOrigin is this tool's own URL prefix, always whitelisted.
	OwnOrigin string
	// AllowUnverified selects the armed-mode default for records that are
	// known but carry no verdict. True favors availability (the historical
	// behavior); false fails closed.
	AllowUnverified bool
	BloomFPRate     float64
}

// New constructs an Engine. Call Hydrate before serving decisions.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.UI == nil {
		opts.UI = NopUI{}
	}
	if opts.BloomFPRate <= 0 {
		opts.BloomFPRate = defaultBloomFPRate
	}

	e := &Engine{
		recorder:        opts.Recorder,
		ui:              opts.UI,
		tasks:           opts.Tasks,
		logger:          opts.Logger,
		whitelist:       newWhitelist(opts.OwnOrigin),
		allowUnverified: opts.AllowUnverified,
		bloomFPRate:     opts.BloomFPRate,
		sites:           make(map[int64]domain.Site),
		siteIDs:         make(map[string]int64),
		resources:       make(map[int64]domain.Resource),
		resourceIDs:     make(map[resourceKey]int64),
		seen:            bloom.NewWithEstimates(minBloomCapacity, opts.BloomFPRate),
		tabs:            make(map[int]int64),
	}

	if opts.Settings != nil {
		cancel := opts.Settings.Observe(settings.KeyMode, domain.ModeOff.String(), func(value string) {
			mode, err := domain.ParseMode(value)
			if err != nil {
				e.logger.Warn(map[string]any{"value": value}, "ignoring invalid mode setting")
				return
			}
			e.mu.Lock()
			e.mode = mode
			e.mu.Unlock()
		})
		e.cancels = append(e.cancels, cancel)
	}
	if opts.NewSites != nil {
		e.cancels = append(e.cancels, opts.NewSites.Subscribe(e.onNewSite))
	}
	if opts.NewResources != nil {
		e.cancels = append(e.cancels, opts.NewResources.Subscribe(e.onNewResource))
	}
	return e
}

// Close cancels the engine's subscriptions.
func (e *Engine) Close() {
	for _, cancel := range e.cancels {
		cancel()
	}
}

// Mode returns the current operating mode.
func (e *Engine) Mode() domain.Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// Whitelist returns the static infrastructure whitelist for display.
func (e *Engine) Whitelist() []string {
	return e.whitelist.Names()
}

// Hydrate builds the in-memory mirror from the store. It runs the four
// startup read queries; afterwards the mirror is maintained solely through
// recorder events.
func (e *Engine) Hydrate(st Storage) error {
	siteRows, err := st.FindAllIndexed(store.Table(store.TableSites).Associated(), nil)
	if err != nil {
		return fmt.Errorf("load sites: %w", err)
	}

	siteIDRows, err := st.FindAsMap(store.Table(store.TableSites), "domain", []string{"id"}, nil)
	if err != nil {
		return fmt.Errorf("load site names: %w", err)
	}

	resourceRows, err := st.FindAllIndexed(
		store.Table(store.TableResources).
			WithColumns("id", "url", "blocked", "discovery", "sb_lookup", "types.tag").
			WithJoin(store.TableTypes, map[string]string{"type_id": "id"}, "").
			Associated(),
		nil)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	resourceURLs, err := st.FindAsMap(store.Table(store.TableResources), "url", []string{"id"}, nil)
	if err != nil {
		return fmt.Errorf("load resource urls: %w", err)
	}

	sites := make(map[int64]domain.Site, len(siteRows))
	siteIDs := make(map[string]int64, len(siteIDRows))
	for id, row := range siteRows {
		sites[id] = siteFromRow(id, row)
	}
	for name, id := range siteIDRows {
		if n, ok := name.(string); ok {
			siteIDs[n] = store.Row{"id": id}.Int64("id")
		}
	}

	resources := make(map[int64]domain.Resource, len(resourceRows))
	resourceIDs := make(map[resourceKey]int64, len(resourceRows))
	for id, row := range resourceRows {
		res := resourceFromRow(id, row)
		resources[id] = res
		resourceIDs[resourceKey{url: res.URL, typ: res.Type}] = id
	}

	capacity := uint(len(resourceURLs))
	if capacity < minBloomCapacity {
		capacity = minBloomCapacity
	}
	seen := bloom.NewWithEstimates(capacity, e.bloomFPRate)
	for url := range resourceURLs {
		if u, ok := url.(string); ok {
			seen.AddString(u)
		}
	}

	e.mu.Lock()
	e.sites = sites
	e.siteIDs = siteIDs
	e.resources = resources
	e.resourceIDs = resourceIDs
	e.seen = seen
	e.mu.Unlock()

	e.logger.Info(map[string]any{"sites": len(sites), "resources": len(resources)},
		"decision engine hydrated")
	return nil
}

// onNewSite folds a newly persisted site into the mirror.
func (e *Engine) onNewSite(site domain.Site) {
	e.mu.Lock()
	e.sites[site.ID] = site
	e.siteIDs[site.Name] = site.ID
	e.mu.Unlock()
}

// onNewResource folds a newly persisted resource into the mirror.
func (e *Engine) onNewResource(ev recorder.ResourceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.siteIDs[ev.SiteName]; !ok {
		e.logger.Error(map[string]any{"site": ev.SiteName, "url": ev.Resource.URL},
			"new resource references unknown site")
	}
	e.resources[ev.Resource.ID] = ev.Resource
	e.resourceIDs[resourceKey{url: ev.Resource.URL, typ: ev.Resource.Type}] = ev.Resource.ID
	e.seen.AddString(ev.Resource.URL)
}

func siteFromRow(id int64, row store.Row) domain.Site {
	return domain.Site{
		ID:                  id,
		Name:                row.String("domain"),
		Blocked:             domain.BlockStateFromSQL(row["blocked"]),
		FirstSeen:           store.ParseTime(row.String("discovery")),
		LastReputationCheck: store.ParseTime(row.String("sb_lookup")),
	}
}

func resourceFromRow(id int64, row store.Row) domain.Resource {
	return domain.Resource{
		ID:                  id,
		URL:                 row.String("url"),
		Type:                domain.ResourceType(row.String("types.tag")),
		Blocked:             domain.BlockStateFromSQL(row["blocked"]),
		FirstSeen:           store.ParseTime(row.String("discovery")),
		LastReputationCheck: store.ParseTime(row.String("sb_lookup")),
	}
}
