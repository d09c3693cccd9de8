// Package main is the entry point of the window arranger daemon.
//
// The daemon keeps the arrangement of windows in sync with an external
// arranging app, snapshots it into named memory slots, and restores them on
// demand.
//
//	window host ──POST /windows──▶ daemon ◀──ws / native messaging──▶ app
//	UI          ◀──GET /events───┘
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8010 -app ws://127.0.0.1:8011/arranger
//	./server -app-command "/usr/lib/arranger/host --stdio"
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop arranging, drain HTTP, close the store
package main
