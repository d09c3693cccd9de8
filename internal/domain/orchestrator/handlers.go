package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
)

// windowCreated waits for the window to settle, then observes it.
func (o *Orchestrator) windowCreated(ctx context.Context, id arrangement.WindowID) {
	timer := time.NewTimer(o.cfg.WindowCreatedDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	err := o.dispatch(ctx, "windowCreated", true, func(ctx context.Context) error {
		return o.observeCreated(ctx, id)
	})
	o.logHandlerError("windowCreated", err)
}

func (o *Orchestrator) observeCreated(ctx context.Context, id arrangement.WindowID) error {
	info := observe.Add(id)
	moveToTop := o.moveToTop(ctx)

	var changed *arrangement.Arrangement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := o.memory.Observe(gctx, info)
		return err
	})
	g.Go(func() error {
		observed, err := o.transport.ChangeObserved(gctx, info)
		if err != nil {
			return err
		}
		changed = observed
		if !moveToTop {
			return nil
		}
		top, ok := topArrangement(observed, id)
		if !ok {
			return nil
		}
		moved, err := o.transport.SetArrangement(gctx, top)
		if err != nil {
			return err
		}
		changed = arrangement.Merge(observed, moved)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("observe window %d: %w", id, err)
	}
	return o.updateCurrent(ctx, changed)
}

// topArrangement places id before every other window of its group.
func topArrangement(a *arrangement.Arrangement, id arrangement.WindowID) (*arrangement.Arrangement, bool) {
	pos, ok := a.Window(id)
	if !ok {
		return nil, false
	}
	groupPos, _ := a.GroupPosition(pos.Group)
	top := arrangement.New()
	if err := top.AddWindow(id, arrangement.Position{Group: pos.Group, Index: -1}, &groupPos); err != nil {
		return nil, false
	}
	return top, true
}

func (o *Orchestrator) windowRemoved(ctx context.Context, id arrangement.WindowID) {
	err := o.dispatch(ctx, "windowRemoved", true, func(ctx context.Context) error {
		info := observe.Delete(id)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			_, err := o.memory.Observe(gctx, info)
			return err
		})
		g.Go(func() error {
			_, err := o.transport.ChangeObserved(gctx, info)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("unobserve window %d: %w", id, err)
		}

		o.current.Arrangement.DeleteWindow(id)
		o.current.Date = time.Now()
		if err := o.saveCurrent(ctx); err != nil {
			return err
		}
		o.notifyArrangement()
		return nil
	})
	o.logHandlerError("windowRemoved", err)
}

func (o *Orchestrator) windowsRearranged(ctx context.Context, update *arrangement.Arrangement) {
	err := o.dispatch(ctx, "windowsRearranged", true, func(ctx context.Context) error {
		return o.updateCurrent(ctx, update)
	})
	o.logHandlerError("windowsRearranged", err)
}

// updateCurrent merges update into the current snapshot and persists it.
// Caller holds the mutex.
func (o *Orchestrator) updateCurrent(ctx context.Context, update *arrangement.Arrangement) error {
	o.current = arrangement.MergeStores(o.current, arrangement.NewStore(update, time.Time{}))
	if err := o.saveCurrent(ctx); err != nil {
		return err
	}
	o.notifyArrangement()
	return nil
}

func (o *Orchestrator) saveCurrent(ctx context.Context) error {
	if o.metrics != nil {
		o.metrics.SetWindowsObserved(o.current.Arrangement.Len())
	}
	return o.memory.Save(ctx, SlotCurrent, o.current, 1)
}

func (o *Orchestrator) moveToTop(ctx context.Context) bool {
	if o.settings == nil {
		return true
	}
	v, err := o.settings.Bool(ctx, MoveToTopSetting)
	if err != nil {
		o.logger.Warn("Falling back to moving to top", zap.Error(err))
		return true
	}
	return v
}
