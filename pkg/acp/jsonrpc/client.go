package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
)

// sendQueueDepth bounds the outbound queue. Producers block once the writer
// falls this far behind.
const sendQueueDepth = 100

// Process is the child agent process handle the client takes ownership of.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Wait reaps the process after its output stream has closed.
	Wait() error
}

// Client handles JSON-RPC 2.0 communication with one child agent process
// over line-delimited JSON on its stdio. The client owns the process for its
// lifetime: it runs a single writer goroutine draining a bounded FIFO queue
// and a reader goroutine correlating responses to pending calls and fanning
// out agent-originated notifications.
type Client struct {
	proc   Process
	stdin  io.WriteCloser
	stdout io.Reader

	sendCh    chan *Request
	requestID atomic.Int64

	mu      sync.Mutex
	pending map[string]chan *Response

	notifier *broadcaster

	callTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once

	logger *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds every Call. Zero means calls wait indefinitely for
// the agent (or the caller's context).
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// NewClient takes ownership of a spawned child process and starts the writer
// and reader loops. It fails if either stdio pipe is unavailable.
func NewClient(proc Process, log *logger.Logger, opts ...Option) (*Client, error) {
	stdin := proc.Stdin()
	if stdin == nil {
		return nil, ErrNoStdin
	}
	stdout := proc.Stdout()
	if stdout == nil {
		return nil, ErrNoStdout
	}

	c := &Client{
		proc:     proc,
		stdin:    stdin,
		stdout:   stdout,
		sendCh:   make(chan *Request, sendQueueDepth),
		pending:  make(map[string]chan *Response),
		notifier: newBroadcaster(),
		done:     make(chan struct{}),
		logger:   log.WithFields(zap.String("component", "jsonrpc-client")),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.writeLoop()
	go c.readLoop()

	return c, nil
}

// Done is closed when the connection has torn down (child exited or Close
// was called).
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down: pending calls fail with
// ErrConnectionClosed and the child process is reaped.
func (c *Client) Close() {
	c.teardown()
}

// Call sends a request and waits for the matching response. Concurrent calls
// are independent; replies may arrive in any order. The response's Error
// field is the agent's failure, not a transport failure, and is left to the
// caller to interpret.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	id := c.requestID.Add(1)
	key := strconv.FormatInt(id, 10)

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	req := &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}

	respCh := make(chan *Response, 1)
	c.mu.Lock()
	c.pending[key] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.callTimeout, ErrCallTimeout)
		defer cancel()
	}

	if err := c.enqueue(ctx, req); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		if cause := context.Cause(ctx); errors.Is(cause, ErrCallTimeout) {
			return nil, ErrCallTimeout
		}
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionClosed
	}
}

// Notify sends a request with no id; no response is expected. It fails only
// when the connection has torn down.
func (c *Client) Notify(method string, params interface{}) error {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return err
	}

	req := &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsJSON,
	}

	return c.enqueue(context.Background(), req)
}

// Subscribe returns a new handle onto the notification fan-out. Every handle
// independently receives every agent-originated message from subscription
// time onward; a handle that stops draining loses messages rather than
// stalling the reader.
func (c *Client) Subscribe() *NotificationStream {
	return c.notifier.subscribe()
}

func (c *Client) enqueue(ctx context.Context, req *Request) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- req:
		return nil
	case <-ctx.Done():
		if cause := context.Cause(ctx); errors.Is(cause, ErrCallTimeout) {
			return ErrCallTimeout
		}
		return ctx.Err()
	case <-c.done:
		return ErrConnectionClosed
	}
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// writeLoop drains the outbound queue in FIFO order, one compact JSON object
// per line. A write failure ends the loop; the connection is then write-dead
// but keeps draining reads until the child's output closes.
func (c *Client) writeLoop() {
	for {
		select {
		case req := <-c.sendCh:
			data, err := json.Marshal(req)
			if err != nil {
				c.logger.Error("failed to serialize request", zap.Error(err))
				continue
			}

			c.logger.Debug("sending to agent", zap.ByteString("data", data))

			data = append(data, '\n')
			if _, err := c.stdin.Write(data); err != nil {
				c.logger.Error("failed to write to agent stdin", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop consumes the child's output line by line. Protocol skew on a
// single line is logged and skipped; only the stream closing ends the loop.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		c.logger.Debug("received from agent", zap.ByteString("data", line))
		c.dispatch(line)
	}

	if err := scanner.Err(); err != nil {
		c.logger.Error("error reading from agent stdout", zap.Error(err))
	}

	c.teardown()
}

// dispatch classifies one line. A message without a method is a response; a
// message with a method is an agent-originated call or notification (even
// when it carries an id we did not issue); anything else is dropped.
func (c *Client) dispatch(line []byte) {
	var probe struct {
		ID     interface{}     `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *ErrorObject    `json:"error"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		c.logger.Warn("failed to parse agent message",
			zap.ByteString("data", line), zap.Error(err))
		return
	}

	if probe.Method != "" {
		c.notifier.publish(&Request{
			JSONRPC: Version,
			ID:      probe.ID,
			Method:  probe.Method,
			Params:  probe.Params,
		})
		return
	}

	if probe.ID == nil {
		c.logger.Warn("dropping message with neither method nor id",
			zap.ByteString("data", line))
		return
	}

	c.handleResponse(&Response{
		JSONRPC: Version,
		ID:      probe.ID,
		Result:  probe.Result,
		Error:   probe.Error,
	})
}

func (c *Client) handleResponse(resp *Response) {
	key := NormalizeID(resp.ID)

	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("received response for unknown request id",
			zap.String("id", key))
		return
	}

	ch <- resp
}

// teardown ends the connection: waiters on Done and pending calls observe
// ErrConnectionClosed, the fan-out closes, and the child is reaped.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		c.pending = make(map[string]chan *Response)
		c.mu.Unlock()

		c.notifier.close()

		_ = c.stdin.Close()
		if err := c.proc.Wait(); err != nil {
			c.logger.Debug("agent process exited", zap.Error(err))
		}
	})
}
