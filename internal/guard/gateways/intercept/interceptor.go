// Package intercept adapts the host's request-interception hook to the
// decision engine: it applies the user's per-type tracking policy, asks the
// engine for a verdict, and translates a block into the host-specific
// action (redirect, substitute, or cancel).
package intercept

import (
	"context"
	"sync"

	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/repos/settings"
)

// TransparentPNG replaces blocked images so layouts stay intact.
const TransparentPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAACklEQVR4nGMAAQAABQABDQottAAAAABJRU5ErkJggg=="

// frameTypes are registered separately from content types so frame
// verdicts can redirect instead of cancel.
var frameTypes = []domain.ResourceType{
	domain.ResourceTypeMainFrame,
	domain.ResourceTypeSubFrame,
}

var contentTypes = []domain.ResourceType{
	domain.ResourceTypeImage,
	domain.ResourceTypeObject,
	domain.ResourceTypeOther,
	domain.ResourceTypeScript,
	domain.ResourceTypeXHR,
}

// defaultPolicies is the out-of-the-box tracking policy per resource type.
// Images are not tracked unless the user opts in; stylesheets are never
// classified.
var defaultPolicies = map[domain.ResourceType]bool{
	domain.ResourceTypeMainFrame: true,
	domain.ResourceTypeSubFrame:  true,
	domain.ResourceTypeImage:     false,
	domain.ResourceTypeObject:    true,
	domain.ResourceTypeOther:     true,
	domain.ResourceTypeScript:    true,
	domain.ResourceTypeXHR:       true,
}

// Interceptor owns hook registration lifecycle and verdict translation.
type Interceptor struct {
	hook    HostHook
	decider Decider
	logger  log.Logger

	// blockPageURL and framePageURL are the explanatory pages blocked
	// navigations and frames are redirected to.
	blockPageURL string
	framePageURL string

	mu              sync.Mutex
	enabled         bool
	blockMainframes bool
	policies        map[domain.ResourceType]bool
	unregister      []func()
	cancels         []func()
}

// Options configures an Interceptor.
type Options struct {
	Hook     HostHook
	Decider  Decider
	Settings settings.Store
	Logger   log.Logger
	// BlockPageURL is where blocked top-level navigations are sent when
	// the block-navigations policy is enabled.
	BlockPageURL string
	// FramePageURL is the neutral placeholder for blocked sub-frames.
	FramePageURL string
}

// New constructs an Interceptor and wires its settings observers. The
// interceptor starts disabled; the mode setting enables it.
func New(opts Options) *Interceptor {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	i := &Interceptor{
		hook:         opts.Hook,
		decider:      opts.Decider,
		logger:       opts.Logger,
		blockPageURL: opts.BlockPageURL,
		framePageURL: opts.FramePageURL,
		policies:     make(map[domain.ResourceType]bool, len(defaultPolicies)),
	}
	for t, v := range defaultPolicies {
		i.policies[t] = v
	}

	if opts.Settings == nil {
		return i
	}

	for _, t := range domain.TrackableTypes {
		typ := t
		def := "false"
		if defaultPolicies[typ] {
			def = "true"
		}
		cancel := opts.Settings.Observe(settings.TrackKey(string(typ)), def, func(value string) {
			i.SetTrackingPolicy(typ, value == "true")
		})
		i.cancels = append(i.cancels, cancel)
	}

	i.cancels = append(i.cancels,
		opts.Settings.Observe(settings.KeyBlockMainframes, "false", func(value string) {
			i.mu.Lock()
			i.blockMainframes = value == "true"
			i.mu.Unlock()
		}),
		opts.Settings.Observe(settings.KeyMode, domain.ModeOff.String(), func(value string) {
			mode, err := domain.ParseMode(value)
			if err != nil {
				return
			}
			if err := i.Enable(mode != domain.ModeOff); err != nil {
				i.logger.Error(map[string]any{"error": err}, "could not toggle interceptor")
			}
		}),
	)
	return i
}

// Close cancels settings observers and removes hook registrations.
func (i *Interceptor) Close() {
	for _, cancel := range i.cancels {
		cancel()
	}
	_ = i.Enable(false)
}

// Enable registers or removes the hook listeners. Repeated enables are
// idempotent; a disabled interceptor leaves the host in its default
// allow-everything behavior.
func (i *Interceptor) Enable(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if on == i.enabled {
		return nil
	}
	if !on {
		i.removeListenersLocked()
		i.enabled = false
		return nil
	}

	i.logger.Debug(nil, "enabling interceptor")
	for _, types := range [][]domain.ResourceType{frameTypes, contentTypes} {
		cancel, err := i.hook.Register(types, i.Handle)
		if err != nil {
			i.removeListenersLocked()
			return err
		}
		i.unregister = append(i.unregister, cancel)
	}
	i.enabled = true
	return nil
}

// Enabled reports whether hook listeners are currently registered.
func (i *Interceptor) Enabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.enabled
}

func (i *Interceptor) removeListenersLocked() {
	if len(i.unregister) > 0 {
		i.logger.Debug(nil, "disabling interceptor")
	}
	for _, cancel := range i.unregister {
		cancel()
	}
	i.unregister = nil
}

// SetTrackingPolicy toggles classification of one resource type. A
// de-selected type bypasses the engine entirely.
func (i *Interceptor) SetTrackingPolicy(t domain.ResourceType, track bool) {
	i.mu.Lock()
	i.policies[t] = track
	i.mu.Unlock()
}

// Handle is the hook listener: it produces the synchronous verdict for one
// in-flight request.
func (i *Interceptor) Handle(req domain.Request) Response {
	if i.allowed(req) {
		return Response{Action: ActionAllow}
	}
	return i.blockResponse(req)
}

func (i *Interceptor) allowed(req domain.Request) bool {
	i.mu.Lock()
	tracked := i.policies[req.Type]
	i.mu.Unlock()

	if !tracked {
		return true
	}
	return i.decider.Decide(context.Background(), req)
}

// blockResponse translates a block verdict into the host action for the
// request's resource type.
func (i *Interceptor) blockResponse(req domain.Request) Response {
	i.mu.Lock()
	blockMainframes := i.blockMainframes
	i.mu.Unlock()

	switch {
	case req.Type == domain.ResourceTypeMainFrame && blockMainframes:
		return Response{Action: ActionRedirect, RedirectURL: i.blockPageURL}
	case req.Type == domain.ResourceTypeMainFrame:
		// Navigation blocking is disabled; let the page load.
		return Response{Action: ActionAllow}
	case req.Type == domain.ResourceTypeSubFrame:
		return Response{Action: ActionRedirect, RedirectURL: i.framePageURL}
	case req.Type == domain.ResourceTypeImage:
		return Response{Action: ActionRedirect, RedirectURL: TransparentPNG}
	default:
		return Response{Action: ActionCancel}
	}
}
