package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
)

type resolver struct {
	missing map[arrangement.WindowID]bool
}

func (r resolver) NativeHandle(_ context.Context, id arrangement.WindowID) (Handle, error) {
	if r.missing[id] {
		return "", errors.New("window gone")
	}
	return Handle(fmt.Sprintf("0x%d", id)), nil
}

// fakeApp answers requests on its end of a pipe. It keeps one group per
// observed handle and echoes set arrangements back.
type fakeApp struct {
	t    *testing.T
	conn Conn

	mu       sync.Mutex
	observed map[Handle]bool
	received []*Message
	silent   bool
	status   string
}

func newFakeApp(t *testing.T, conn Conn) *fakeApp {
	app := &fakeApp{t: t, conn: conn, observed: map[Handle]bool{}, status: StatusOK}
	go app.serve()
	return app
}

func (a *fakeApp) arrangementOf(handles []Handle) *arrangement.Serializable[Handle] {
	s := &arrangement.Serializable[Handle]{IDField: HandleField}
	g := arrangement.MustGroup("desk")
	for i, h := range handles {
		s.Windows = append(s.Windows, arrangement.Entry[Handle]{ID: h, Position: arrangement.Position{Group: g, Index: i}})
	}
	if len(handles) > 0 {
		s.Groups = []arrangement.GroupEntry{{Group: g}}
	}
	return s
}

func (a *fakeApp) serve() {
	for {
		msg, err := a.conn.Receive()
		if err != nil {
			return
		}
		a.mu.Lock()
		a.received = append(a.received, msg)
		silent, status := a.silent, a.status
		a.mu.Unlock()
		if silent {
			continue
		}

		req, err := DecodeRequest(msg)
		if !assert.NoError(a.t, err) {
			return
		}
		var value interface{}
		switch r := req.(type) {
		case *ChangeObservedRequest:
			a.mu.Lock()
			for _, h := range r.Info.AddToObserved {
				a.observed[h] = true
			}
			for _, h := range r.Info.DeleteFromObserved {
				delete(a.observed, h)
			}
			a.mu.Unlock()
			value = a.arrangementOf(r.Info.AddToObserved)
		case *GetArrangementRequest:
			handles := r.Handles
			if r.All {
				a.mu.Lock()
				for h := range a.observed {
					handles = append(handles, h)
				}
				a.mu.Unlock()
			}
			value = a.arrangementOf(handles)
		case *SetArrangementRequest:
			value = r.Arrangement
		}
		data, err := sonic.Marshal(value)
		require.NoError(a.t, err)
		_ = a.conn.Send(&Message{Source: SourceBrowser, ID: msg.ID, Type: TypeResponse, Value: data, Status: status})
	}
}

func (a *fakeApp) set(fn func(a *fakeApp)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

func (a *fakeApp) messages() []*Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Message(nil), a.received...)
}

func startClient(t *testing.T, r resolver) (*Client, *fakeApp) {
	t.Helper()
	local, remote := NewPipe()
	c := NewClient(func(context.Context) (Conn, error) { return local, nil }, r, zap.NewNop())
	app := newFakeApp(t, remote)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if c.Running() {
			c.Stop()
		}
	})
	return c, app
}

func TestChangeObserved(t *testing.T) {
	c, app := startClient(t, resolver{missing: map[arrangement.WindowID]bool{3: true}})
	ctx := context.Background()

	a, err := c.ChangeObserved(ctx, observe.Add[arrangement.WindowID](1, 2, 3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []arrangement.WindowID{1, 2}, a.WindowIDs())

	msgs := app.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].ID, "correlation ids start at 1")
	assert.Equal(t, SourceBrowser, msgs[0].Source)
	assert.Equal(t, 0, c.Pending())

	a, err = c.ChangeObserved(ctx, observe.Delete[arrangement.WindowID](2))
	require.NoError(t, err)
	assert.True(t, a.IsEmpty())
	assert.Equal(t, int64(2), app.messages()[1].ID)
}

func TestGetArrangement(t *testing.T) {
	c, app := startClient(t, resolver{})
	ctx := context.Background()
	_, err := c.ChangeObserved(ctx, observe.Add[arrangement.WindowID](1, 2))
	require.NoError(t, err)

	all, err := c.GetArrangement(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Len())
	assert.Contains(t, string(app.messages()[1].Value), `"handles":"all"`)

	some, err := c.GetArrangement(ctx, []arrangement.WindowID{2, 9}, true)
	require.NoError(t, err)
	assert.Equal(t, []arrangement.WindowID{2}, some.WindowIDs())

	other, err := c.GetArrangement(ctx, []arrangement.WindowID{7}, false)
	require.NoError(t, err)
	assert.Equal(t, []arrangement.WindowID{7}, other.WindowIDs(), "throw-away mapper decodes unobserved windows")
	_, observed := c.mapper.CustomID(7)
	assert.False(t, observed)

	_, err = c.GetArrangement(ctx, nil, false)
	assert.ErrorIs(t, err, ErrNoIDs)
}

func TestSetArrangement(t *testing.T) {
	c, _ := startClient(t, resolver{})
	ctx := context.Background()
	_, err := c.ChangeObserved(ctx, observe.Add[arrangement.WindowID](1))
	require.NoError(t, err)

	g := arrangement.MustGroup("top")
	want := arrangement.New()
	require.NoError(t, want.AddWindow(1, arrangement.Position{Group: g, Index: -1}, &arrangement.GroupPosition{Index: 3}))
	require.NoError(t, want.AddWindow(5, arrangement.Position{Group: g, Index: 0}, nil))

	got, err := c.SetArrangement(ctx, want)
	require.NoError(t, err)
	pos, ok := got.Window(1)
	require.True(t, ok)
	assert.Equal(t, -1, pos.Index)
	_, ok = got.Window(5)
	assert.False(t, ok, "window without handle is not sent")
}

func TestSendMessageTimeout(t *testing.T) {
	c, app := startClient(t, resolver{})
	c.WithTimeout(30 * time.Millisecond)
	app.set(func(a *fakeApp) { a.silent = true })

	_, err := c.SendMessage(context.Background(), GetArrangementRequest{All: true, InObserved: true})
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsProtocolError(err))
	assert.Equal(t, 0, c.Pending(), "pending entry removed after timeout")
}

func TestSendMessageStatusError(t *testing.T) {
	c, app := startClient(t, resolver{})
	app.set(func(a *fakeApp) { a.status = "ERROR" })

	_, err := c.SendMessage(context.Background(), GetArrangementRequest{All: true})
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ERROR", re.Status)
	assert.Equal(t, 0, c.Pending())
}

func TestUnexpectedDisconnect(t *testing.T) {
	c, app := startClient(t, resolver{})
	app.set(func(a *fakeApp) { a.silent = true })

	errs := make(chan error, 1)
	go func() {
		_, err := c.SendMessage(context.Background(), GetArrangementRequest{All: true})
		errs <- err
	}()
	require.Eventually(t, func() bool { return len(app.messages()) == 1 }, time.Second, time.Millisecond)

	_ = app.conn.Close()

	assert.ErrorIs(t, <-errs, ErrDisconnected)
	ev := <-c.Events()
	assert.Equal(t, EventUnexpectedDisconnection, ev.Kind)
	assert.Equal(t, c.Session(), ev.Session)
	assert.False(t, c.Running())
	assert.Equal(t, 0, c.Pending())

	c.Stop()
	_, err := c.ChangeObserved(context.Background(), observe.Add[arrangement.WindowID](1))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestExplicitStop(t *testing.T) {
	c, app := startClient(t, resolver{})
	app.set(func(a *fakeApp) { a.silent = true })

	errs := make(chan error, 1)
	go func() {
		_, err := c.SendMessage(context.Background(), GetArrangementRequest{All: true})
		errs <- err
	}()
	require.Eventually(t, func() bool { return len(app.messages()) == 1 }, time.Second, time.Millisecond)

	c.Stop()
	assert.ErrorIs(t, <-errs, ErrStopped)
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}

func TestArrangementChangedEvent(t *testing.T) {
	c, app := startClient(t, resolver{})
	ctx := context.Background()
	_, err := c.ChangeObserved(ctx, observe.Add[arrangement.WindowID](4))
	require.NoError(t, err)

	data, err := sonic.Marshal(app.arrangementOf([]Handle{"0x4", "0x99"}))
	require.NoError(t, err)
	require.NoError(t, app.conn.Send(&Message{Source: SourceApp, ID: 1, Type: TypeArrangementChanged, Value: data, Status: StatusOK}))
	require.NoError(t, app.conn.Send(&Message{Source: SourceApp, ID: 2, Type: "somethingElse", Status: StatusOK}))

	ev := <-c.Events()
	assert.Equal(t, EventArrangementChanged, ev.Kind)
	assert.Equal(t, []arrangement.WindowID{4}, ev.Arrangement.WindowIDs())
}

func TestStartTwiceWarns(t *testing.T) {
	c, _ := startClient(t, resolver{})
	session := c.Session()
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, session, c.Session())
}

func TestGetArrangementRequestJSON(t *testing.T) {
	tests := []struct {
		name string
		req  GetArrangementRequest
		want string
	}{
		{"all", GetArrangementRequest{All: true, InObserved: true}, `{"handles":"all","inObserved":true}`},
		{"list", GetArrangementRequest{Handles: []Handle{"a", "b"}}, `{"handles":["a","b"],"inObserved":false}`},
		{"empty", GetArrangementRequest{}, `{"handles":[],"inObserved":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := sonic.Marshal(tt.req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back GetArrangementRequest
			require.NoError(t, sonic.Unmarshal(data, &back))
			assert.Equal(t, tt.req.All, back.All)
			assert.Equal(t, len(tt.req.Handles), len(back.Handles))
		})
	}

	var bad GetArrangementRequest
	assert.Error(t, sonic.Unmarshal([]byte(`{"handles":"some"}`), &bad))
}

func TestDecodeRequestUnknown(t *testing.T) {
	_, err := DecodeRequest(&Message{Type: "dance"})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "dance"))
}

func TestMalformedFrameKeepsSession(t *testing.T) {
	ourR, appW := io.Pipe()
	appR, ourW := io.Pipe()
	local := NewStreamConn(ourR, ourW, nil)
	remote := NewStreamConn(appR, appW, nil)

	c := NewClient(func(context.Context) (Conn, error) { return local, nil }, resolver{}, zap.NewNop())
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		_ = ourR.Close()
		_ = remote.Close()
	})
	session := c.Session()

	require.NoError(t, WriteFrame(appW, []byte(`{not json`)))
	newFakeApp(t, remote)

	a, err := c.ChangeObserved(context.Background(), observe.Add[arrangement.WindowID](1))
	require.NoError(t, err)
	assert.Equal(t, []arrangement.WindowID{1}, a.WindowIDs())
	assert.True(t, c.Running())
	assert.Equal(t, session, c.Session())
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}
