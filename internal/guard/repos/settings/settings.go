// Package settings provides the persistent, observable key/value settings
// the core reacts to at runtime: operating mode, per-type tracking
// toggles, the reputation API key, and the navigation-blocking flag.
package settings

// Store is the settings contract. Observers fire asynchronously after a
// value actually changes; registering with a default also fires once with
// the current (or default) value so components can initialize from it.
type Store interface {
	Get(key, def string) string
	Set(key, value string) error
	// Observe registers fn for changes of key. When def is non-empty (or
	// initial is desired) the current value is delivered immediately.
	// The returned cancel removes the observer.
	Observe(key, def string, fn func(value string)) (cancel func())
}

// Well-known setting keys.
const (
	KeyMode            = "mode"
	KeyBlockMainframes = "blockmainframes"
	KeyReputationKey   = "reputation_api_key"
)

// TrackKey returns the per-resource-type tracking toggle key, e.g.
// "track_script".
func TrackKey(tag string) string {
	return "track_" + tag
}
