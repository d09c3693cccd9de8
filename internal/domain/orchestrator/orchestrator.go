package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/shared/mutex"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/transport"
)

// Well-known snapshot slots.
const (
	SlotCurrent    = "$current"
	SlotPrevious   = "$previous"
	SlotBackupLong = "$backupLong"
	SlotAuxiliary  = "$auxiliary"
)

const (
	DefaultWindowCreatedDelay = 40 * time.Second
	DefaultBackupInterval     = 5 * time.Minute
)

// MoveToTopSetting is the settings key consulted for created windows and loads.
const MoveToTopSetting = "moveToTop"

// Transport is the connection to the arranging app.
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	Session() string
	Events() <-chan transport.Event
	ChangeObserved(ctx context.Context, info observe.Info[arrangement.WindowID]) (*arrangement.Arrangement, error)
	GetArrangement(ctx context.Context, ids []arrangement.WindowID, inObserved bool) (*arrangement.Arrangement, error)
	SetArrangement(ctx context.Context, a *arrangement.Arrangement) (*arrangement.Arrangement, error)
}

// Memory is the snapshot persistence layer.
type Memory interface {
	Start(ctx context.Context) error
	Stop()
	Observe(ctx context.Context, info observe.Info[arrangement.WindowID]) (observe.Info[memory.UID], error)
	UID(id arrangement.WindowID) (memory.UID, bool)
	Save(ctx context.Context, name string, store *arrangement.Store, maxSize int) error
	Load(ctx context.Context, name string, index int) (*arrangement.Store, error)
	Copy(ctx context.Context, src, dst string, index, maxSize int) error
	CopyArray(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, name string, index int) error
	DeleteArray(ctx context.Context, name string) error
	Slots(ctx context.Context) ([]memory.SlotInfo, error)
	Dump(ctx context.Context) (map[string]json.RawMessage, error)
	Clear(ctx context.Context, windows []arrangement.WindowID) error
	WindowCounter(ctx context.Context) (int64, error)
}

// Windows enumerates live windows and reports their lifecycle.
type Windows interface {
	IDs(ctx context.Context) ([]arrangement.WindowID, error)
	Subscribe(buffer int) (<-chan registry.Event, func())
	WindowValue(ctx context.Context, id arrangement.WindowID, key string) (string, bool, error)
}

// Settings answers boolean settings.
type Settings interface {
	Bool(ctx context.Context, key string) (bool, error)
	Forget()
}

// Notifier receives UI notifications. Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// Config tunes timers.
type Config struct {
	WindowCreatedDelay time.Duration
	BackupInterval     time.Duration
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Transport Transport
	Memory    Memory
	Windows   Windows
	Settings  Settings
	Notifier  Notifier
}

// Orchestrator drives the arranger lifecycle. Every operation is admitted
// through one FIFO mutex.
type Orchestrator struct {
	cfg       Config
	transport Transport
	memory    Memory
	windows   Windows
	settings  Settings
	notifier  Notifier
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu    *mutex.FIFO
	state atomic.Int32

	// guarded by mu
	current     *arrangement.Store
	session     string
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates an orchestrator in the NotRunning state.
func New(cfg Config, deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowCreatedDelay <= 0 {
		cfg.WindowCreatedDelay = DefaultWindowCreatedDelay
	}
	if cfg.BackupInterval <= 0 {
		cfg.BackupInterval = DefaultBackupInterval
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Orchestrator{
		cfg:       cfg,
		transport: deps.Transport,
		memory:    deps.Memory,
		windows:   deps.Windows,
		settings:  deps.Settings,
		notifier:  notifier,
		logger:    logger,
		mu:        mutex.New(logger.Named("mutex")),
	}
}

// WithMetrics adds metrics tracking to the orchestrator
func (o *Orchestrator) WithMetrics(metrics *monitoring.Metrics) *Orchestrator {
	o.metrics = metrics
	if metrics != nil {
		o.mu.OnWait(metrics.ObserveLockWait)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Running reports whether the orchestrator is running.
func (o *Orchestrator) Running() bool {
	return o.State() == Running
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.announce(s)
}

func (o *Orchestrator) announce(s State) {
	if o.metrics != nil {
		o.metrics.SetRunningState(int(s))
	}
	o.notifier.Notify(Notification{Type: NotifyRunningState, Running: s == Running, State: s.String()})
}

// dispatch runs fn under the mutex. With requireRunning the state is checked
// before queueing and again once admitted. Admitted work is not canceled by ctx.
func (o *Orchestrator) dispatch(ctx context.Context, op string, requireRunning bool, fn func(ctx context.Context) error) error {
	if requireRunning {
		if s := o.State(); s != Running {
			return &RunningStateError{Op: op, State: s}
		}
	}
	return o.mu.Do(ctx, op, func() error {
		if requireRunning {
			if s := o.State(); s != Running {
				return &RunningStateError{Op: op, State: s}
			}
		}
		return fn(context.WithoutCancel(ctx))
	})
}

// Start brings the arranger up. A failed start rolls back whatever was
// started and leaves the orchestrator NotRunning.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(NotRunning), int32(Starting)) {
		return &RunningStateError{Op: "start", State: o.State()}
	}
	o.announce(Starting)

	err := o.mu.Do(ctx, "start", func() error {
		return o.bringUp(context.WithoutCancel(ctx))
	})
	if err != nil {
		if o.State() != NotRunning {
			o.setState(NotRunning)
		}
		o.logger.Error("Failed to start arranger", zap.Error(err))
		return err
	}
	return nil
}

func (o *Orchestrator) bringUp(ctx context.Context) (err error) {
	var rollback []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		o.setState(NotRunning)
		o.logger.Warn("Start rolled back", zap.Int("steps", len(rollback)), zap.Error(err))
	}()

	ids, err := o.windows.IDs(ctx)
	if err != nil {
		return fmt.Errorf("enumerate windows: %w", err)
	}
	if err = o.memory.Start(ctx); err != nil {
		return fmt.Errorf("start memory: %w", err)
	}
	rollback = append(rollback, o.memory.Stop)
	if err = o.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	rollback = append(rollback, o.transport.Stop)

	info := observe.Add(ids...)
	var initial *arrangement.Arrangement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := o.memory.Observe(gctx, info)
		return err
	})
	g.Go(func() error {
		a, err := o.transport.ChangeObserved(gctx, info)
		initial = a
		return err
	})
	if err = g.Wait(); err != nil {
		return fmt.Errorf("observe windows: %w", err)
	}

	o.current = arrangement.NewStore(initial, time.Time{})
	rollback = append(rollback, func() { o.current = nil })

	if cerr := o.memory.Copy(ctx, SlotCurrent, SlotPrevious, 0, memory.DefaultMaxSize); cerr != nil {
		o.logger.Debug("No snapshot to rotate into previous", zap.Error(cerr))
	}
	if err = o.saveCurrent(ctx); err != nil {
		return fmt.Errorf("save %s: %w", SlotCurrent, err)
	}

	o.listen(o.transport.Session())
	o.setState(Running)
	o.logger.Info("Arranger started", zap.Int("windows", len(ids)), zap.String("session", o.session))
	o.notifyArrangement()
	return nil
}

// Stop tears the arranger down. Stopping while not running logs a warning.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		o.logger.Warn("Stop requested while not running", zap.Stringer("state", o.State()))
		return nil
	}
	o.announce(Stopping)

	return o.mu.Do(context.WithoutCancel(ctx), "stop", func() error {
		o.tearDown()
		return nil
	})
}

func (o *Orchestrator) tearDown() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.wg.Wait()

	o.transport.Stop()
	o.memory.Stop()

	o.current = nil
	o.session = ""
	o.cancel = nil
	o.unsubscribe = nil
	o.setState(NotRunning)
	o.logger.Info("Arranger stopped")
}

// Switch starts a stopped arranger or stops a running one.
func (o *Orchestrator) Switch(ctx context.Context) error {
	switch s := o.State(); s {
	case Running:
		return o.Stop(ctx)
	case NotRunning:
		return o.Start(ctx)
	default:
		return &RunningStateError{Op: "switch", State: s}
	}
}

func (o *Orchestrator) listen(session string) {
	ctx, cancel := context.WithCancel(context.Background())
	windowEvents, unsubscribe := o.windows.Subscribe(0)
	o.session = session
	o.cancel = cancel
	o.unsubscribe = unsubscribe

	o.wg.Add(2)
	go o.eventLoop(ctx, session, windowEvents)
	go o.backupLoop(ctx)
}

func (o *Orchestrator) eventLoop(ctx context.Context, session string, windowEvents <-chan registry.Event) {
	defer o.wg.Done()
	appEvents := o.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-windowEvents:
			switch ev.Kind {
			case registry.WindowCreated:
				id := ev.Window.ID
				o.wg.Add(1)
				go func() {
					defer o.wg.Done()
					o.windowCreated(ctx, id)
				}()
			case registry.WindowRemoved:
				o.windowRemoved(ctx, ev.Window.ID)
			}
		case ev := <-appEvents:
			if ev.Session != session {
				o.logger.Debug("Ignoring event from previous connection", zap.Stringer("kind", ev.Kind))
				continue
			}
			switch ev.Kind {
			case transport.EventArrangementChanged:
				o.windowsRearranged(ctx, ev.Arrangement)
			case transport.EventUnexpectedDisconnection:
				o.logger.Error("App disconnected unexpectedly, stopping arranger", zap.Error(ev.Err))
				go func() {
					if err := o.Stop(context.Background()); err != nil {
						o.logger.Error("Failed to stop after disconnection", zap.Error(err))
					}
				}()
				return
			}
		}
	}
}

func (o *Orchestrator) backupLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.BackupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := o.dispatch(ctx, "backup", true, func(ctx context.Context) error {
				return o.memory.Copy(ctx, SlotCurrent, SlotBackupLong, 0, 1)
			})
			o.logHandlerError("backup", err)
		}
	}
}

func (o *Orchestrator) logHandlerError(op string, err error) {
	switch {
	case err == nil:
	case ctxDone(err):
		o.logger.Debug("Handler abandoned", zap.String("op", op))
	default:
		o.logger.Warn("Handler failed", zap.String("op", op), zap.Error(err))
	}
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
