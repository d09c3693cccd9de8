// Package registry tracks the live windows reported by the window host.
//
// The registry is the enumeration service, the native handle resolver and
// the window value store used by the rest of the daemon.
//
// Components:
//   - Manager: window add/remove with change subscriptions
//
// Features:
//   - Ordered enumeration of live window ids
//   - Handle resolution for the app transport
//   - Durable per-window values keyed by native handle
//   - Non-blocking fan-out of created/removed events
//
// Storage Structure:
//   - Values stored in the key-value store as JSON strings
//   - Key: wv_{handle}_{key}
//
// Example Usage:
//
//	windows := registry.NewManager(store, logger)
//	err := windows.Add(registry.Window{ID: 7, Handle: "0x3a00007"})
//	events, unsubscribe := windows.Subscribe(0)
//	defer unsubscribe()
package registry
