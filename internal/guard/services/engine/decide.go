package engine

import (
	"context"

	"github.com/haukened/surfguard/internal/guard/common/urlutil"
	"github.com/haukened/surfguard/internal/guard/domain"
)

// Rate classifies a request from the in-memory mirror. A nil return means
// the engine is off and the caller should allow without further action.
// Top-level navigations update the tab's site context as a side effect,
// regardless of verdict.
func (e *Engine) Rate(req domain.Request) *domain.Rating {
	if e.Mode() == domain.ModeOff {
		return nil
	}

	if e.whitelist.Matches(req) {
		return domain.WhitelistedRating()
	}

	if req.Type == domain.ResourceTypeMainFrame {
		e.registerTab(req)
	}

	rating := &domain.Rating{Known: true}

	e.mu.RLock()
	defer e.mu.RUnlock()

	siteID, ok := e.tabs[req.TabID]
	if !ok {
		rating.Known = false
		return rating
	}

	// A blocked site blocks everything loaded in its context.
	if site, ok := e.sites[siteID]; ok && site.Blocked == domain.BlockStateBlocked {
		rating.Blocked = domain.BlockStateBlocked
		return rating
	}

	// Frames are rated at site level only.
	if req.Type.IsFrame() {
		return rating
	}

	url := urlutil.Normalize(req.URL)

	if _, ok := e.siteIDs[urlutil.Host(url)]; ok {
		rating.DomainKnown = true
	}

	if !e.seen.TestString(url) {
		rating.Known = false
		return rating
	}
	id, ok := e.resourceIDs[resourceKey{url: url, typ: req.Type}]
	if !ok {
		rating.Known = false
		return rating
	}
	res, ok := e.resources[id]
	if !ok {
		rating.Known = false
		return rating
	}

	if res.Blocked == domain.BlockStateBlocked {
		rating.Blocked = domain.BlockStateBlocked
		return rating
	}

	// The resource is known and not marked bad.
	rating.Blocked = domain.BlockStateAllowed
	return rating
}

// Decide returns the synchronous allow/block verdict for a request. It
// never performs I/O; recording and UI notifications are dispatched to the
// background queue.
func (e *Engine) Decide(ctx context.Context, req domain.Request) bool {
	rating := e.Rate(req)

	// No rating means there is nothing to do.
	if rating == nil {
		return true
	}

	mode := e.Mode()

	if !rating.Whitelisted {
		e.logger.Debug(map[string]any{
			"url": req.URL, "type": string(req.Type),
			"known": rating.Known, "blocked": rating.Blocked.String(),
			"domain_known": rating.DomainKnown,
		}, "rated request")
	}

	if mode == domain.ModeLearning && !rating.Whitelisted {
		e.scheduleRecording(ctx, req)
	}

	e.scheduleUIUpdate(req, *rating, mode)

	if mode != domain.ModeArmed || rating.Whitelisted {
		return true
	}

	// Armed: blocking possible.
	if rating.Blocked == domain.BlockStateBlocked {
		return false
	}
	if e.allowUnverified {
		// A known site or resource without a verdict defaults to allowed.
		return rating.Known || rating.DomainKnown
	}
	return rating.Blocked == domain.BlockStateAllowed
}

// registerTab associates a tab with its site so later sub-requests can be
// related to it. Unknown sites leave the context untouched; the recorder
// establishes it once the site is persisted.
func (e *Engine) registerTab(req domain.Request) {
	host := urlutil.Host(req.URL)

	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.siteIDs[host]
	if !ok {
		return
	}
	if _, ok := e.sites[id]; !ok {
		return
	}
	e.tabs[req.TabID] = id
}

// DropTab discards a closed tab's site context.
func (e *Engine) DropTab(tabID int) {
	e.mu.Lock()
	delete(e.tabs, tabID)
	e.mu.Unlock()
}

func (e *Engine) scheduleRecording(ctx context.Context, req domain.Request) {
	if e.recorder == nil || e.tasks == nil {
		return
	}
	if !req.FromHostTab() {
		// Host-internal traffic; should have been whitelisted upstream.
		e.logger.Warn(map[string]any{"tab": req.TabID, "url": req.URL},
			"not recording request without valid tab")
		return
	}
	e.tasks.Submit(func() {
		e.recorder.Record(ctx, req)
	})
}

// scheduleUIUpdate dispatches indicator updates off the decision path.
func (e *Engine) scheduleUIUpdate(req domain.Request, rating domain.Rating, mode domain.Mode) {
	if e.tasks == nil {
		return
	}
	e.tasks.Submit(func() {
		unknown := !rating.Known && !rating.DomainKnown
		flagged := rating.Blocked == domain.BlockStateBlocked || unknown

		if req.Type == domain.ResourceTypeMainFrame {
			e.ui.RegisterMainframe(req)
			e.ui.SetDefault(req)
		} else if mode != domain.ModeLearning && flagged && !rating.Whitelisted {
			e.ui.RegisterDisallowedOrUnknown(req)
		}

		if mode != domain.ModeLearning && flagged && !rating.Whitelisted {
			e.ui.SetWarning(req)
		}
	})
}
