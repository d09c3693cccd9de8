// Package server wires the window arranger daemon.
//
// NewServer opens the sqlite memory store and builds, in order: the window
// registry, settings, the memory manager, the app transport (native
// messaging when APP_COMMAND is set, WebSocket otherwise), the UI event hub
// and the orchestrator. The gin router carries recovery, request ids,
// request logging, metrics, CORS and optional rate limiting in front of the
// control API, /events and /metrics.
package server
