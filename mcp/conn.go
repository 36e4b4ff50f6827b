// Package mcp speaks the Model Context Protocol to locally spawned tool
// servers: JSON-RPC 2.0, one message per line, over the server's stdio.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/errors"
)

// ProtocolVersion is the MCP revision this client negotiates.
const ProtocolVersion = "2024-11-05"

// ErrServerDisconnected is returned by calls pending or issued after the
// server's stdout closes.
var ErrServerDisconnected = errors.Sentinel("mcp server disconnected")

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      *int64      `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return e.Message }

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Conn is one JSON-RPC connection to an MCP server. Requests may be issued
// from any goroutine; replies are correlated by id.
type Conn struct {
	name   string
	w      io.WriteCloser
	nextID atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *rpcResponse
	closed  bool

	// done is closed when the read loop exits.
	done chan struct{}

	// stderr accumulates server diagnostics until a buffer is attached;
	// after that, lines stream into out directly.
	stderr   bytes.Buffer
	out      *buffer.Buffer
	stderrMu sync.Mutex

	cmd *exec.Cmd
}

// newConn starts the read loop over r and writes requests to w. cmd may be
// nil for in-process transports.
func newConn(name string, r io.Reader, w io.WriteCloser, stderr io.Reader, cmd *exec.Cmd) *Conn {
	c := &Conn{
		name:    name,
		w:       w,
		pending: make(map[int64]chan *rpcResponse),
		done:    make(chan struct{}),
		cmd:     cmd,
	}
	go c.readLoop(r)
	if stderr != nil {
		go c.drainStderr(stderr)
	}
	return c
}

// Dial spawns the server process and completes the initialize handshake.
func Dial(ctx context.Context, name, command string, args, env []string) (*Conn, error) {
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "mcp %s: stdin", name)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "mcp %s: stdout", name)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "mcp %s: stderr", name)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "mcp %s: cannot start %s", name, command)
	}

	c := newConn(name, stdout, stdin, stderr, cmd)
	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "termineer",
			"version": "0.1.0",
		},
	}
	if _, err := c.Call(ctx, "initialize", params); err != nil {
		return errors.Wrapf(err, "mcp %s: initialize failed", c.name)
	}
	return c.Notify("notifications/initialized", nil)
}

// Call sends one request and waits for the matching reply, the context, or
// disconnect.
func (c *Conn) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	reply := make(chan *rpcResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrServerDisconnected
	}
	c.pending[id] = reply
	c.mu.Unlock()

	if err := c.send(&rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-reply:
		if resp == nil {
			return nil, ErrServerDisconnected
		}
		if resp.Error != nil {
			return nil, errors.Wrapf(resp.Error, "mcp %s: %s", c.name, method)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrServerDisconnected
	}
}

// Notify sends a request with no id and does not wait for a reply.
func (c *Conn) Notify(method string, params interface{}) error {
	return c.send(&rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Conn) send(req *rpcRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "mcp %s: marshal %s", c.name, req.Method)
	}
	payload = append(payload, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(payload); err != nil {
		return errors.Wrapf(err, "mcp %s: write failed", c.name)
	}
	return nil
}

// readLoop decodes one message per line and routes replies to waiters.
// Messages with unknown or missing ids are dropped.
func (c *Conn) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			log.Debug().Str("server", c.name).Err(err).Msg("mcp: unparseable message")
			continue
		}
		if resp.ID == nil {
			// Server-initiated notification. Nothing subscribes yet.
			continue
		}
		c.mu.Lock()
		reply, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.mu.Unlock()
		if ok {
			reply <- &resp
		}
	}
	c.disconnect()
}

// disconnect fails every pending call and marks the connection dead.
func (c *Conn) disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan *rpcResponse)
	c.mu.Unlock()

	close(c.done)
	for _, reply := range pending {
		reply <- nil
	}
}

func (c *Conn) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		c.stderrMu.Lock()
		if c.out != nil {
			c.out.Append(buffer.KindDebug, "["+c.name+"] "+line)
		} else if c.stderr.Len() < 64*1024 {
			c.stderr.WriteString(line)
			c.stderr.WriteByte('\n')
		}
		c.stderrMu.Unlock()
	}
}

// SetBuffer routes server stderr lines into b, prefixed with the server
// name. Diagnostics captured before the attach are flushed first.
func (c *Conn) SetBuffer(b *buffer.Buffer) {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	c.out = b
	if b == nil || c.stderr.Len() == 0 {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(c.stderr.String(), "\n"), "\n") {
		b.Append(buffer.KindDebug, "["+c.name+"] "+line)
	}
	c.stderr.Reset()
}

// Stderr returns the server diagnostics captured while no buffer was
// attached.
func (c *Conn) Stderr() string {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	return c.stderr.String()
}

// Disconnected reports whether the server side has gone away.
func (c *Conn) Disconnected() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close tears the connection down and reaps the subprocess.
func (c *Conn) Close() error {
	err := c.w.Close()
	c.disconnect()
	if c.cmd != nil {
		// Wait also closes the pipes from cmd.StdoutPipe.
		if werr := c.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
