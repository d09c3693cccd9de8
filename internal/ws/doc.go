// Package ws pushes arranger notifications to UI clients over WebSocket.
//
// Message Types (Server → Client):
//   - system: sent once on connect
//   - runningStateChanged: {running, state}
//   - arrangementChanged: the current arrangement with window uids
//   - pong: reply to ping
//   - error: unknown client message
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// The last notification of each type is replayed to new clients.
//
// Example Usage:
//
//	hub := ws.NewHub(logger)
//	router.GET("/events", hub.HandleConnection)
package ws
