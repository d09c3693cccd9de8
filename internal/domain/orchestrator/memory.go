package orchestrator

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
)

// LoadFromMemory applies a stored snapshot. The pre-load state is kept in
// the auxiliary slot. Returns the arrangement the app confirmed.
func (o *Orchestrator) LoadFromMemory(ctx context.Context, name string, index int) (*arrangement.Arrangement, error) {
	var changed *arrangement.Arrangement
	err := o.dispatch(ctx, "loadFromMemory", true, func(ctx context.Context) error {
		order, err := o.memory.Load(ctx, name, index)
		if err != nil {
			return err
		}
		loaded := order.Arrangement
		loaded.Normalize(o.moveToTop(ctx))
		placeGroupsFirst(loaded, o.current.Arrangement)

		previous := o.current.Clone()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return o.memory.Save(gctx, SlotAuxiliary, previous, 1)
		})
		g.Go(func() error {
			a, err := o.transport.SetArrangement(gctx, loaded)
			changed = a
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		return o.updateCurrent(ctx, changed)
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// placeGroupsFirst renumbers the groups of loaded so they sort before every
// group of current.
func placeGroupsFirst(loaded, current *arrangement.Arrangement) {
	minIndex, ok := current.MinGroupIndex()
	if !ok {
		loaded.NormalizeGroups(nil)
		return
	}
	start := minIndex - len(loaded.Groups())
	loaded.NormalizeGroups(&start)
}

// SaveToMemory stores the current snapshot in a slot.
func (o *Orchestrator) SaveToMemory(ctx context.Context, name string, maxSize int) error {
	return o.dispatch(ctx, "saveToMemory", true, func(ctx context.Context) error {
		return o.memory.Save(ctx, name, o.current, maxSize)
	})
}

// CopyInMemory copies one snapshot between slots. It does not need a
// running arranger.
func (o *Orchestrator) CopyInMemory(ctx context.Context, src, dst string, index, maxSize int) error {
	return o.dispatch(ctx, "copyInMemory", false, func(ctx context.Context) error {
		return o.memory.Copy(ctx, src, dst, index, maxSize)
	})
}

// CopyArrayInMemory copies a whole slot.
func (o *Orchestrator) CopyArrayInMemory(ctx context.Context, src, dst string) error {
	return o.dispatch(ctx, "copyArrayInMemory", false, func(ctx context.Context) error {
		return o.memory.CopyArray(ctx, src, dst)
	})
}

// DeleteFromMemory removes one snapshot from a slot.
func (o *Orchestrator) DeleteFromMemory(ctx context.Context, name string, index int) error {
	return o.dispatch(ctx, "deleteFromMemory", false, func(ctx context.Context) error {
		return o.memory.Delete(ctx, name, index)
	})
}

// DeleteArrayFromMemory removes a whole slot.
func (o *Orchestrator) DeleteArrayFromMemory(ctx context.Context, name string) error {
	return o.dispatch(ctx, "deleteArrayFromMemory", false, func(ctx context.Context) error {
		return o.memory.DeleteArray(ctx, name)
	})
}

// Slots lists the stored slots.
func (o *Orchestrator) Slots(ctx context.Context) ([]memory.SlotInfo, error) {
	return o.memory.Slots(ctx)
}

// MemoryDumpGlobal returns every stored key.
func (o *Orchestrator) MemoryDumpGlobal(ctx context.Context) (map[string]json.RawMessage, error) {
	return o.memory.Dump(ctx)
}

// MemoryDumpWindows returns the durable id tagged on each live window.
// Untagged windows are left out.
func (o *Orchestrator) MemoryDumpWindows(ctx context.Context) (map[arrangement.WindowID]memory.UID, error) {
	ids, err := o.windows.IDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[arrangement.WindowID]memory.UID, len(ids))
	for _, id := range ids {
		uid, ok, err := o.windows.WindowValue(ctx, id, memory.UIDField)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = memory.UID(uid)
		}
	}
	return out, nil
}

// ClearAllMemory removes window tags and every stored key. It is refused
// unless the arranger is stopped.
func (o *Orchestrator) ClearAllMemory(ctx context.Context) error {
	return o.dispatch(ctx, "clearAllMemory", false, func(ctx context.Context) error {
		if s := o.State(); s != NotRunning {
			return &RunningStateError{Op: "clearAllMemory", State: s}
		}
		ids, err := o.windows.IDs(ctx)
		if err != nil {
			return err
		}
		if err := o.memory.Clear(ctx, ids); err != nil {
			return err
		}
		if o.settings != nil {
			o.settings.Forget()
		}
		return nil
	})
}

// WindowCounter returns the next durable id to be minted.
func (o *Orchestrator) WindowCounter(ctx context.Context) (int64, error) {
	return o.memory.WindowCounter(ctx)
}

// Current returns a copy of the current snapshot.
func (o *Orchestrator) Current(ctx context.Context) (*arrangement.Store, error) {
	var out *arrangement.Store
	err := o.dispatch(ctx, "current", true, func(context.Context) error {
		out = o.current.Clone()
		return nil
	})
	return out, err
}

// LiveArrangement asks the app for the arrangement of ids, or of every
// observed window when ids is nil.
func (o *Orchestrator) LiveArrangement(ctx context.Context, ids []arrangement.WindowID, inObserved bool) (*arrangement.Arrangement, error) {
	var out *arrangement.Arrangement
	err := o.dispatch(ctx, "getArrangement", true, func(ctx context.Context) error {
		a, err := o.transport.GetArrangement(ctx, ids, inObserved)
		out = a
		return err
	})
	return out, err
}
