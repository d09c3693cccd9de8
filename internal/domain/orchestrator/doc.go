/*
Package orchestrator drives the window arranger.

# States

	notRunning -> starting -> running -> stopping -> notRunning

Start enumerates the live windows, starts persistence and the app
connection, observes every window, rotates $current into $previous and
saves a fresh $current. It then listens for window and app events and
backs $current up into $backupLong on a timer. Any failure rolls back what
was started.

# Serialization

Lifecycle handlers and memory operations run one at a time through a FIFO
mutex. Operations that need a running arranger fail immediately otherwise,
and check again once admitted.

# Events

  - window created: observed after a settling delay, optionally moved to top
  - window removed: unobserved and dropped from $current
  - arrangement changed by the app: merged into $current
  - unexpected disconnection: the arranger stops
*/
package orchestrator
