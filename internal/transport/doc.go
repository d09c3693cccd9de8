// Package transport talks to the window arranging app.
//
// A Client keeps at most one connection open. Requests are correlated by a
// numeric id that restarts at 1 on every connection; each waits up to
// DefaultTimeout for its response. Closing the connection, explicitly or
// not, rejects every pending request.
//
// Two connection kinds exist:
//   - WebSocket: the app listens on a ws:// url
//   - Native: the app is spawned and framed over stdin/stdout with a
//     4-byte little-endian length prefix
//
// Windows are identified by opaque handles on the wire. The client keeps an
// observe.Mapper from window ids to handles for the connection's lifetime.
//
// Example Usage:
//
//	client := transport.NewClient(transport.WebSocketDialer(url), registry, logger)
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//	current, err := client.ChangeObserved(ctx, observe.Add(ids...))
package transport
