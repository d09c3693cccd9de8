// Package memory persists arrangement snapshots across sessions.
//
// Snapshots are stored in named slots. Each slot holds a bounded history,
// newest first, under the key "as_<name>". Windows are identified in storage
// by durable ids minted from a persisted counter ("windowCounter") and tagged
// onto the window as its "uid" value, so a window keeps its id as long as its
// host keeps the tag.
//
// Components:
//   - Manager: start/stop lifecycle, durable id mapping, slot operations
//   - WindowValues: the host side tag store used to read and write uids
//
// Example Usage:
//
//	m := memory.NewManager(store, registry, logger)
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	defer m.Stop()
//
//	_, _ = m.Observe(ctx, observe.Add(ids...))
//	err := m.Save(ctx, "work", snapshot, memory.DefaultMaxSize)
package memory
