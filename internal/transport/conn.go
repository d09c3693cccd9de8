package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// MaxFrameSize bounds a single native messaging frame.
const MaxFrameSize = 64 << 20

// Conn is a bidirectional message channel to the app. Receive blocks until a
// message arrives or the connection fails; Close unblocks it.
type Conn interface {
	Send(msg *Message) error
	Receive() (*Message, error)
	Close() error
}

// Dialer opens a new connection to the app.
type Dialer func(ctx context.Context) (Conn, error)

// WebSocketDialer dials the app at a ws:// or wss:// url.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		dialer := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
		ws, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return NewWebSocketConn(ws), nil
	}
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketConn wraps an established WebSocket.
func NewWebSocketConn(ws *websocket.Conn) Conn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Send(msg *Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Receive() (*Message, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, &MalformedError{Err: err}
		}
		return &msg, nil
	}
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// WriteFrame writes data as a native messaging frame: a 4-byte little-endian
// length followed by the payload.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(data))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one native messaging frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// NativeDialer spawns the app and talks to it over its stdin and stdout
// using native messaging frames.
func NativeDialer(command string, args ...string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd := exec.Command(command, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", command, err)
		}
		return NewStreamConn(stdout, stdin, cmd), nil
	}
}

type streamConn struct {
	r       *bufio.Reader
	w       io.WriteCloser
	cmd     *exec.Cmd
	writeMu sync.Mutex
	once    sync.Once
	closed  error
}

// NewStreamConn frames messages over a reader and writer. When cmd is not
// nil, Close also waits for the process to exit, killing it after a grace
// period.
func NewStreamConn(r io.Reader, w io.WriteCloser, cmd *exec.Cmd) Conn {
	return &streamConn{r: bufio.NewReader(r), w: w, cmd: cmd}
}

func (c *streamConn) Send(msg *Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.w, data)
}

func (c *streamConn) Receive() (*Message, error) {
	data, err := ReadFrame(c.r)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, &MalformedError{Err: err}
	}
	return &msg, nil
}

func (c *streamConn) Close() error {
	c.once.Do(func() {
		c.writeMu.Lock()
		c.closed = c.w.Close()
		c.writeMu.Unlock()
		if c.cmd == nil {
			return
		}
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = c.cmd.Process.Kill()
			<-done
		}
	})
	return c.closed
}

// ErrPipeClosed is returned by a closed pipe end.
var ErrPipeClosed = errors.New("pipe closed")

type pipeEnd struct {
	in     <-chan *Message
	out    chan<- *Message
	done   chan struct{}
	closer *sync.Once
}

// NewPipe returns two connected in-memory Conn ends. Closing either end
// closes both.
func NewPipe() (Conn, Conn) {
	a := make(chan *Message, 64)
	b := make(chan *Message, 64)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: a, out: b, done: done, closer: once},
		&pipeEnd{in: b, out: a, done: done, closer: once}
}

func (p *pipeEnd) Send(msg *Message) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}
	cp := *msg
	select {
	case p.out <- &cp:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

func (p *pipeEnd) Receive() (*Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *pipeEnd) Close() error {
	p.closer.Do(func() { close(p.done) })
	return nil
}
