package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/resilience"
)

// DefaultTimeout bounds a correlated request.
const DefaultTimeout = 5 * time.Second

// HandleResolver returns the native handle of a live window.
type HandleResolver interface {
	NativeHandle(ctx context.Context, id arrangement.WindowID) (Handle, error)
}

// EventKind distinguishes events emitted by the client.
type EventKind int

const (
	EventArrangementChanged EventKind = iota
	EventUnexpectedDisconnection
)

func (k EventKind) String() string {
	switch k {
	case EventArrangementChanged:
		return "arrangementChanged"
	case EventUnexpectedDisconnection:
		return "unexpectedDisconnection"
	default:
		return "unknown"
	}
}

// Event is an unsolicited notification from the connection.
type Event struct {
	Kind        EventKind
	Session     string
	Arrangement *arrangement.Arrangement
	Err         error
}

type pendingCall struct {
	resp chan *Message
	fail chan error
}

// Client exchanges correlated requests with the app over one connection at
// a time. It owns the handle mapper of the current connection.
type Client struct {
	dial     Dialer
	resolver HandleResolver
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	breaker  *resilience.Breaker
	timeout  time.Duration
	events   chan Event

	// serializes Start and Stop
	lifeMu sync.Mutex

	mu       sync.Mutex
	conn     Conn
	running  bool
	stopping bool
	nextID   int64
	pending  map[int64]*pendingCall
	mapper   *observe.Mapper[arrangement.WindowID, Handle]
	session  string
	done     chan struct{}
}

// NewClient creates a client that connects with dial and resolves native
// handles through resolver.
func NewClient(dial Dialer, resolver HandleResolver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		dial:     dial,
		resolver: resolver,
		logger:   logger,
		breaker:  resilience.New("app", resilience.Settings{}),
		timeout:  DefaultTimeout,
		events:   make(chan Event, 256),
		pending:  make(map[int64]*pendingCall),
	}
}

// WithTimeout sets the correlated request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithMetrics adds metrics tracking to the client
func (c *Client) WithMetrics(metrics *monitoring.Metrics) *Client {
	c.metrics = metrics
	return c
}

// WithBreaker replaces the dial circuit breaker.
func (c *Client) WithBreaker(b *resilience.Breaker) *Client {
	c.breaker = b
	return c
}

// Events returns the channel of unsolicited events. It is never closed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Running reports whether a connection is open.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Session returns the id of the current or last connection.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Start opens a connection. Starting while connected logs a warning.
func (c *Client) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.Running() {
		c.logger.Warn("Connection already running")
		return nil
	}

	conn, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) (Conn, error) {
		return c.dial(ctx)
	})
	if err != nil {
		return fmt.Errorf("connect to app: %w", err)
	}

	session := uuid.NewString()
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.running = true
	c.stopping = false
	c.nextID = 1
	c.mapper = observe.NewMapper[arrangement.WindowID, Handle](0)
	c.session = session
	c.done = done
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConnected(true)
	}
	go c.readLoop(conn, session, done)

	c.logger.Info("Connected to app", zap.String("session", session))
	return nil
}

// Stop rejects pending requests and closes the connection. Stopping while
// not connected logs a warning. No event is emitted.
func (c *Client) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.logger.Warn("Connection already stopped")
		return
	}
	c.stopping = true
	c.rejectAllLocked(ErrStopped)
	conn, done, session := c.conn, c.done, c.session
	c.mu.Unlock()

	if err := conn.Close(); err != nil {
		c.logger.Debug("Close failed", zap.Error(err))
	}
	<-done

	c.mu.Lock()
	c.conn = nil
	c.running = false
	c.stopping = false
	c.mapper = nil
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConnected(false)
	}
	c.logger.Info("Disconnected from app", zap.String("session", session))
}

func (c *Client) rejectAllLocked(err error) {
	for id, call := range c.pending {
		select {
		case call.fail <- err:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(conn Conn, session string, done chan struct{}) {
	defer close(done)
	for {
		msg, err := conn.Receive()
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			c.logger.Warn("Skipping malformed message from app", zap.String("session", session), zap.Error(err))
			if c.metrics != nil {
				c.metrics.RecordAppCallError("receive", "malformed")
			}
			continue
		}
		if err != nil {
			c.disconnected(session, err)
			return
		}
		if c.metrics != nil {
			c.metrics.RecordMessage("in", msg.Type)
		}
		switch {
		case msg.Source == SourceBrowser && msg.Type == TypeResponse:
			c.deliver(msg)
		case msg.Source == SourceApp:
			c.handleAppMessage(msg, session)
		default:
			c.logger.Debug("Ignoring message", zap.String("source", msg.Source), zap.String("type", msg.Type))
		}
	}
}

func (c *Client) disconnected(session string, reason error) {
	c.mu.Lock()
	if c.stopping || c.session != session {
		c.mu.Unlock()
		return
	}
	c.rejectAllLocked(fmt.Errorf("%w: %v", ErrDisconnected, reason))
	conn := c.conn
	c.conn = nil
	c.running = false
	c.mapper = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if c.metrics != nil {
		c.metrics.SetConnected(false)
	}
	c.logger.Warn("Unexpected disconnection from app", zap.String("session", session), zap.Error(reason))
	c.emit(Event{Kind: EventUnexpectedDisconnection, Session: session, Err: reason})
}

func (c *Client) deliver(msg *Message) {
	c.mu.Lock()
	call, ok := c.pending[msg.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Response without pending request", zap.Int64("id", msg.ID))
		return
	}
	select {
	case call.resp <- msg:
	default:
	}
}

func (c *Client) handleAppMessage(msg *Message, session string) {
	if msg.Type != TypeArrangementChanged || msg.Status != StatusOK {
		c.logger.Debug("Ignoring app message", zap.String("type", msg.Type), zap.String("status", msg.Status))
		return
	}
	mapper, err := c.currentMapper()
	if err != nil {
		return
	}
	a, err := c.decodeArrangement(msg.Value, mapper)
	if err != nil {
		c.logger.Warn("Malformed arrangementChanged", zap.Error(err))
		return
	}
	c.emit(Event{Kind: EventArrangementChanged, Session: session, Arrangement: a})
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("Event dropped, listener too slow", zap.Stringer("kind", ev.Kind))
	}
}

func (c *Client) currentMapper() (*observe.Mapper[arrangement.WindowID, Handle], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, ErrNotConnected
	}
	return c.mapper, nil
}

func (c *Client) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// SendMessage sends a request and waits for its correlated response value.
// It fails on timeout, disconnect, stop, a send error or a non-OK status.
func (c *Client) SendMessage(ctx context.Context, req Request) (json.RawMessage, error) {
	value, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Type(), err)
	}

	c.mu.Lock()
	if !c.running || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := c.nextID
	c.nextID++
	call := &pendingCall{resp: make(chan *Message, 1), fail: make(chan error, 1)}
	c.pending[id] = call
	conn := c.conn
	c.mu.Unlock()
	defer c.unregister(id)

	timer := monitoring.NewTimer(c.metrics, req.Type())
	msg := &Message{Source: SourceBrowser, ID: id, Type: req.Type(), Value: value}
	if err := conn.Send(msg); err != nil {
		timer.Stop("send")
		return nil, fmt.Errorf("send %s #%d: %w", req.Type(), id, err)
	}
	if c.metrics != nil {
		c.metrics.RecordMessage("out", req.Type())
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	select {
	case resp := <-call.resp:
		if resp.Status != StatusOK {
			timer.Stop("status")
			return nil, &ResponseError{Type: req.Type(), ID: id, Status: resp.Status}
		}
		timer.Stop("")
		return resp.Value, nil
	case err := <-call.fail:
		timer.Stop("disconnect")
		return nil, fmt.Errorf("%s #%d: %w", req.Type(), id, err)
	case <-deadline.C:
		timer.Stop("timeout")
		return nil, fmt.Errorf("%s #%d: %w", req.Type(), id, ErrTimeout)
	case <-ctx.Done():
		timer.Stop("canceled")
		return nil, ctx.Err()
	}
}

func (c *Client) decodeArrangement(raw json.RawMessage, mapper *observe.Mapper[arrangement.WindowID, Handle]) (*arrangement.Arrangement, error) {
	s := arrangement.Serializable[Handle]{IDField: HandleField}
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode arrangement: %w", err)
	}
	a, failures := arrangement.Deserialize(&s, mapper.CommonID)
	if len(failures) > 0 {
		c.logger.Warn("Unknown handles in arrangement from app", zap.Any("handles", failures.Keys()))
	}
	return a, nil
}

func (c *Client) resolveHandle(ctx context.Context, id arrangement.WindowID) (Handle, error) {
	return c.resolver.NativeHandle(ctx, id)
}

// ChangeObserved resolves handles for the windows in info, asks the app to
// observe and unobserve them, and returns the app's arrangement of the
// affected windows.
func (c *Client) ChangeObserved(ctx context.Context, info observe.Info[arrangement.WindowID]) (*arrangement.Arrangement, error) {
	mapper, err := c.currentMapper()
	if err != nil {
		return nil, err
	}
	change := mapper.ChangeObserved(ctx, info, c.resolveHandle)
	if failed := change.Failed(); len(failed) > 0 {
		c.logger.Warn("Failed to resolve native handles", zap.Any("windows", failed))
	}

	raw, err := c.SendMessage(ctx, ChangeObservedRequest{Info: change.Resolved()})
	if err != nil {
		return nil, err
	}
	return c.decodeArrangement(raw, mapper)
}

// GetArrangement asks the app for the arrangement of ids, or of every window
// when ids is nil. With inObserved false the ids are resolved through a
// mapper scoped to this call and must be given.
func (c *Client) GetArrangement(ctx context.Context, ids []arrangement.WindowID, inObserved bool) (*arrangement.Arrangement, error) {
	live, err := c.currentMapper()
	if err != nil {
		return nil, err
	}

	req := GetArrangementRequest{InObserved: inObserved}
	mapper := live
	switch {
	case inObserved && ids == nil:
		req.All = true
	case inObserved:
		req.Handles = make([]Handle, 0, len(ids))
		for _, id := range ids {
			if h, ok := live.CustomID(id); ok {
				req.Handles = append(req.Handles, h)
			}
		}
	case len(ids) == 0:
		return nil, ErrNoIDs
	default:
		mapper = observe.NewMapper[arrangement.WindowID, Handle](0)
		change := mapper.ChangeObserved(ctx, observe.Add(ids...), c.resolveHandle)
		if failed := change.Failed(); len(failed) > 0 {
			c.logger.Warn("Failed to resolve native handles", zap.Any("windows", failed))
		}
		req.Handles = change.Resolved().AddToObserved
	}

	raw, err := c.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.decodeArrangement(raw, mapper)
}

// SetArrangement asks the app to apply a and returns the arrangement the app
// ended up with.
func (c *Client) SetArrangement(ctx context.Context, a *arrangement.Arrangement) (*arrangement.Arrangement, error) {
	mapper, err := c.currentMapper()
	if err != nil {
		return nil, err
	}
	s, failures := arrangement.Serialize(a, HandleField, mapper.CustomID)
	if len(failures) > 0 {
		c.logger.Warn("Windows without handle left out of arrangement", zap.Any("windows", failures.Keys()))
	}

	raw, err := c.SendMessage(ctx, SetArrangementRequest{Arrangement: s})
	if err != nil {
		return nil, err
	}
	return c.decodeArrangement(raw, mapper)
}
