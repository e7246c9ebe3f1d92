package domain

// Rating is the structured verdict the decision engine computes for one
// request. It feeds both the allow/block decision and the UI state.
//
// Known starts out true and is cleared only when a lookup comes up empty;
// a frame request with an established tab context is "known" even though
// no resource row exists for it.
type Rating struct {
	// Whitelisted requests short-circuit to always-allow and skip recording.
	Whitelisted bool
	// Known reports whether the request was previously recorded locally.
	Known bool
	// Blocked is the locally persisted tristate for the request.
	Blocked BlockState
	// DomainKnown reports whether the request URL's own host was previously
	// recorded as a site (independent of the tab's site).
	DomainKnown bool
}

// WhitelistedRating returns the short-circuit rating for whitelisted requests.
func WhitelistedRating() *Rating {
	return &Rating{Whitelisted: true, Known: true}
}
