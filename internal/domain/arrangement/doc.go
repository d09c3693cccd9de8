// Package arrangement models the on-screen arrangement of observed windows.
//
// An Arrangement maps each window to a Position (a group plus an ordering
// index inside that group) and keeps a table of groups with their own
// ordering keys.
//
// Invariant:
//   - A group is present in the group table if and only if at least one
//     window references it. Constructors and mutators reject states that
//     break this with a StructuralError. Merge results are rebuilt to
//     satisfy it instead.
//
// Groups:
//   - Group values are opaque JSON values compared structurally. They are
//     held in canonical form (sorted object keys, compact encoding), so two
//     structurally equal groups are the same Group value and can be used
//     directly as map keys.
//   - Groups is an interned table: an ordered arena of entries plus an
//     index from canonical group to slot.
//
// Serialization:
//   - Serializable[C] is the wire and storage form. Windows are listed as
//     objects carrying a caller-chosen id field ("handle" on the wire to the
//     arranging app, "uid" in storage) next to the position.
//   - Ids that fail to translate are reported in ConversionFailures and
//     never silently dropped.
//
// Merging:
//   - Merge(a, b) is right-biased: b's window positions and b's group
//     positions win, a fills the gaps.
//   - MergeStores keeps the later snapshot date; ties keep the first.
//
// Example Usage:
//
//	a := arrangement.New()
//	g := arrangement.MustGroup(map[string]interface{}{"desktop": 1})
//	_ = a.AddWindow(1, arrangement.Position{Group: g, Index: 0}, &arrangement.GroupPosition{Index: 0})
//	a.Normalize(false)
package arrangement
