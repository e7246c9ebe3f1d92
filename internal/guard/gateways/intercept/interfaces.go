package intercept

import (
	"context"
	"fmt"

	"github.com/haukened/surfguard/internal/guard/domain"
)

// Action is the verdict returned to the host's interception hook.
type Action uint8

const (
	// ActionAllow lets the request proceed.
	ActionAllow Action = iota
	// ActionRedirect substitutes the request target with RedirectURL.
	ActionRedirect
	// ActionCancel aborts the request outright.
	ActionCancel
)

// String returns a stable string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRedirect:
		return "redirect"
	case ActionCancel:
		return "cancel"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Response is the full hook verdict.
type Response struct {
	Action      Action
	RedirectURL string
}

// Handler is the synchronous per-request callback registered with the host.
type Handler func(req domain.Request) Response

// HostHook abstracts the host's request-interception mechanism. Register
// installs a blocking listener for the given resource types and returns a
// cancel that removes it again.
type HostHook interface {
	Register(types []domain.ResourceType, h Handler) (cancel func(), err error)
}

// Decider produces the allow/block verdict; implemented by the decision
// engine.
type Decider interface {
	Decide(ctx context.Context, req domain.Request) bool
}
