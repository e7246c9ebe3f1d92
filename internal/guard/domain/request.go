package domain

import "time"

// Request is the in-flight request descriptor presented by the host's
// interception hook. The hook expects a synchronous verdict for it.
type Request struct {
	URL       string
	Type      ResourceType
	TabID     int
	RequestID string
	Timestamp time.Time
}

// FromHostTab reports whether the request carries a valid tab association.
// Negative tab ids are host-internal traffic and are never recorded.
func (r Request) FromHostTab() bool {
	return r.TabID >= 0
}
