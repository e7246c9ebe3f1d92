package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/common/tasks"
	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/repos/settings"
	"github.com/haukened/surfguard/internal/guard/repos/store"
	"github.com/haukened/surfguard/internal/guard/services/recorder"
)

// stubRecorder captures scheduled recordings.
type stubRecorder struct {
	mu       sync.Mutex
	recorded []domain.Request
}

func (s *stubRecorder) Record(_ context.Context, req domain.Request) {
	s.mu.Lock()
	s.recorded = append(s.recorded, req)
	s.mu.Unlock()
}

func (s *stubRecorder) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recorded))
	for i, r := range s.recorded {
		out[i] = r.URL
	}
	return out
}

// stubUI counts notifications.
type stubUI struct {
	mu       sync.Mutex
	warnings int
	defaults int
}

func (s *stubUI) RegisterMainframe(domain.Request) {}
func (s *stubUI) SetDefault(domain.Request) {
	s.mu.Lock()
	s.defaults++
	s.mu.Unlock()
}
func (s *stubUI) RegisterDisallowedOrUnknown(domain.Request) {}
func (s *stubUI) SetWarning(domain.Request) {
	s.mu.Lock()
	s.warnings++
	s.mu.Unlock()
}

func (s *stubUI) warningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

type engineFixture struct {
	engine   *Engine
	store    *store.Store
	settings *settings.MemoryStore
	recorder *stubRecorder
	ui       *stubUI
	queue    *tasks.Queue
}

// seedStore writes a small known world: one clean site with a checked
// script, one blocked site.
func seedStore(t *testing.T, st *store.Store) (siteID, badSiteID, resourceID int64) {
	t.Helper()
	now := store.FormatTime(time.Now())

	siteID, _, err := st.Insert(store.TableSites, store.Row{
		"domain": "example.com", "blocked": int64(0), "discovery": now, "sb_lookup": now,
	}, store.ConflictFail)
	require.NoError(t, err)

	badSiteID, _, err = st.Insert(store.TableSites, store.Row{
		"domain": "bad.example", "blocked": int64(1), "discovery": now, "sb_lookup": now,
	}, store.ConflictFail)
	require.NoError(t, err)

	resourceID, _, err = st.Insert(store.TableResources, store.Row{
		"url": "https://cdn.example.net/app.js", "type_id": int64(3),
		"blocked": int64(0), "discovery": now, "sb_lookup": now,
	}, store.ConflictFail)
	require.NoError(t, err)

	_, _, err = st.Insert(store.TableLinks, store.Row{
		"content_id": resourceID, "tld_id": siteID, "discovery": now,
	}, store.ConflictFail)
	require.NoError(t, err)
	return siteID, badSiteID, resourceID
}

func newEngineFixture(t *testing.T, allowUnverified bool) *engineFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), log.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	seedStore(t, st)

	prefs := settings.NewMemoryStore()
	rec := &stubRecorder{}
	ui := &stubUI{}
	queue := tasks.New(64, log.NewNoopLogger())

	eng := New(Options{
		Settings:        prefs,
		Recorder:        rec,
		UI:              ui,
		Tasks:           queue,
		Logger:          log.NewNoopLogger(),
		AllowUnverified: allowUnverified,
	})
	t.Cleanup(eng.Close)
	require.NoError(t, eng.Hydrate(st))

	return &engineFixture{engine: eng, store: st, settings: prefs, recorder: rec, ui: ui, queue: queue}
}

func (f *engineFixture) setMode(t *testing.T, mode domain.Mode) {
	t.Helper()
	require.NoError(t, f.settings.Set(settings.KeyMode, mode.String()))
}

// drain waits for all scheduled background work to finish.
func (f *engineFixture) drain() {
	f.queue.Close()
}

func navigate(tab int, url string) domain.Request {
	return domain.Request{URL: url, Type: domain.ResourceTypeMainFrame, TabID: tab}
}

func load(tab int, url string, typ domain.ResourceType) domain.Request {
	return domain.Request{URL: url, Type: typ, TabID: tab}
}

func TestEngine_ModeFollowsSettings(t *testing.T) {
	f := newEngineFixture(t, true)
	assert.Equal(t, domain.ModeOff, f.engine.Mode())

	f.setMode(t, domain.ModeArmed)
	assert.Equal(t, domain.ModeArmed, f.engine.Mode())
}

func TestEngine_OffModeAllowsWithoutSideEffects(t *testing.T) {
	f := newEngineFixture(t, true)

	assert.Nil(t, f.engine.Rate(navigate(1, "https://bad.example/")))
	assert.True(t, f.engine.Decide(context.Background(), navigate(1, "https://bad.example/")))

	f.drain()
	assert.Empty(t, f.recorder.urls())
	assert.Zero(t, f.ui.warningCount())
}

func TestEngine_LearningModeSchedulesRecording(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeLearning)

	assert.True(t, f.engine.Decide(context.Background(), navigate(1, "https://example.com/")))
	assert.True(t, f.engine.Decide(context.Background(), load(1, "https://cdn.example.net/app.js", domain.ResourceTypeScript)))

	f.drain()
	assert.Equal(t, []string{"https://example.com/", "https://cdn.example.net/app.js"}, f.recorder.urls())
	assert.Zero(t, f.ui.warningCount(), "learning mode never warns")
}

func TestEngine_WhitelistedNeverRecorded(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeLearning)

	rating := f.engine.Rate(load(1, "https://ssl.google-analytics.com/ga.js", domain.ResourceTypeScript))
	require.NotNil(t, rating)
	assert.True(t, rating.Whitelisted)

	assert.True(t, f.engine.Decide(context.Background(), load(1, "https://www.google.com/logo.png", domain.ResourceTypeImage)))
	f.drain()
	assert.Empty(t, f.recorder.urls())
}

func TestEngine_WhitelistedAllowedEvenWhenArmed(t *testing.T) {
	f := newEngineFixture(t, false)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	assert.True(t, f.engine.Decide(context.Background(), load(1, "https://ajax.googleapis.com/jquery.js", domain.ResourceTypeScript)))
}

func TestEngine_FaviconWhitelisted(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	rating := f.engine.Rate(load(1, "https://anything.example/favicon.ico?v=2", domain.ResourceTypeOther))
	require.NotNil(t, rating)
	assert.True(t, rating.Whitelisted)
}

func TestEngine_OwnOriginWhitelisted(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), log.NewNoopLogger())
	require.NoError(t, err)
	defer st.Close()

	prefs := settings.NewMemoryStore()
	eng := New(Options{Settings: prefs, OwnOrigin: "chrome-extension://abcdef/", Logger: log.NewNoopLogger()})
	defer eng.Close()
	require.NoError(t, eng.Hydrate(st))
	require.NoError(t, prefs.Set(settings.KeyMode, "armed"))

	assert.True(t, eng.Decide(context.Background(), load(1, "chrome-extension://abcdef/popup.html", domain.ResourceTypeOther)))
}

func TestEngine_ArmedBlocksEverythingOnBlockedSite(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	assert.False(t, f.engine.Decide(ctx, navigate(1, "https://bad.example/")))
	// The navigation still established the tab context; everything loaded
	// under it is blocked too, even an otherwise clean resource.
	assert.False(t, f.engine.Decide(ctx, load(1, "https://cdn.example.net/app.js", domain.ResourceTypeScript)))
}

func TestEngine_ArmedAllowsKnownResource(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	assert.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	assert.True(t, f.engine.Decide(ctx, load(1, "https://cdn.example.net/app.js", domain.ResourceTypeScript)))
}

func TestEngine_NormalizedVariantsShareIdentity(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	assert.True(t, f.engine.Decide(ctx, load(1, "https://cdn.example.net/app.js?cb=123#x", domain.ResourceTypeScript)))
}

func TestEngine_SameURLDifferentTypeIsUnknown(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	// Known as a script, requested as xhr: a distinct, unknown record.
	rating := f.engine.Rate(load(1, "https://cdn.example.net/app.js", domain.ResourceTypeXHR))
	require.NotNil(t, rating)
	assert.False(t, rating.Known)
}

func TestEngine_ArmedBlocksUnknownResource(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	assert.False(t, f.engine.Decide(ctx, load(1, "https://tracker.example.net/pixel.js", domain.ResourceTypeScript)))
}

func TestEngine_ArmedUnknownResourceOnKnownDomainAllowed(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	// The resource itself is unknown but its host is a known site; the
	// availability policy lets it through.
	assert.True(t, f.engine.Decide(ctx, load(1, "https://example.com/new-asset.js", domain.ResourceTypeScript)))
}

func TestEngine_ArmedFailClosedBlocksUnverifiedSite(t *testing.T) {
	permissive := newEngineFixture(t, true)
	permissive.setMode(t, domain.ModeArmed)
	defer permissive.drain()

	strict := newEngineFixture(t, false)
	strict.setMode(t, domain.ModeArmed)
	defer strict.drain()

	// A known site whose verdict is still pending.
	now := store.FormatTime(time.Now())
	for _, f := range []*engineFixture{permissive, strict} {
		_, _, err := f.store.Insert(store.TableSites, store.Row{
			"domain": "pending.example", "discovery": now,
		}, store.ConflictFail)
		require.NoError(t, err)
		require.NoError(t, f.engine.Hydrate(f.store))
	}

	ctx := context.Background()
	assert.True(t, permissive.engine.Decide(ctx, navigate(1, "https://pending.example/")))
	assert.False(t, strict.engine.Decide(ctx, navigate(1, "https://pending.example/")))
}

func TestEngine_NoTabContextIsUnknown(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	// No navigation seen for tab 5; even a known resource cannot be related.
	rating := f.engine.Rate(load(5, "https://cdn.example.net/app.js", domain.ResourceTypeScript))
	require.NotNil(t, rating)
	assert.False(t, rating.Known)
}

func TestEngine_DropTabForgetsContext(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	f.engine.DropTab(1)

	rating := f.engine.Rate(load(1, "https://cdn.example.net/app.js", domain.ResourceTypeScript))
	require.NotNil(t, rating)
	assert.False(t, rating.Known)
}

func TestEngine_UnknownSiteDoesNotClaimTab(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	// Navigating to an unknown site leaves the old context; the recorder
	// re-establishes it once the site is persisted.
	f.engine.Decide(ctx, navigate(1, "https://unseen.example/"))

	rating := f.engine.Rate(load(1, "https://cdn.example.net/app.js", domain.ResourceTypeScript))
	require.NotNil(t, rating)
	assert.True(t, rating.Known)
}

func TestEngine_EventsFoldIntoMirror(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeArmed)
	defer f.drain()

	f.engine.onNewSite(domain.Site{ID: 100, Name: "fresh.example", Blocked: domain.BlockStateAllowed})
	f.engine.onNewResource(recorder.ResourceEvent{
		SiteName: "fresh.example",
		Resource: domain.Resource{
			ID: 200, URL: "https://fresh.example/app.js",
			Type: domain.ResourceTypeScript, Blocked: domain.BlockStateAllowed,
		},
	})

	ctx := context.Background()
	assert.True(t, f.engine.Decide(ctx, navigate(2, "https://fresh.example/")))
	assert.True(t, f.engine.Decide(ctx, load(2, "https://fresh.example/app.js", domain.ResourceTypeScript)))
}

func TestEngine_WarningModeAllowsButWarns(t *testing.T) {
	f := newEngineFixture(t, true)
	f.setMode(t, domain.ModeWarning)

	ctx := context.Background()
	require.True(t, f.engine.Decide(ctx, navigate(1, "https://example.com/")))
	assert.True(t, f.engine.Decide(ctx, load(1, "https://tracker.example.net/pixel.js", domain.ResourceTypeScript)))

	f.drain()
	assert.Equal(t, 1, f.ui.warningCount(), "unknown request in warning mode flags the tab")
}

func TestEngine_Whitelist(t *testing.T) {
	f := newEngineFixture(t, true)
	names := f.engine.Whitelist()
	assert.Contains(t, names, "google")
	assert.Contains(t, names, "doubleclick")
}
