package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/aretw0/registrar/internal/deliver"
	"github.com/aretw0/registrar/pkg/core"
)

// maxEarly bounds the notifications kept for a subscription id not registered yet. They
// are only kept while a subscribe call is in flight.
const maxEarly = 64

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// Client is a JSON-RPC client over one websocket connection. It does not reconnect: once
// the connection drops every call fails and every subscription ends.
type Client struct {
	endpoint         string
	logger           *slog.Logger
	handshakeTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan response
	subs    map[string]*ClientSubscription
	early   map[string][]json.RawMessage
	// subscribing counts subscribe calls awaiting their reply.
	subscribing int
	err         error
	cancel  context.CancelFunc
	done    chan struct{}
}

// Dial connects to a ws:// or wss:// endpoint.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		endpoint:         endpoint,
		logger:           slog.Default(),
		handshakeTimeout: 10 * time.Second,
		pending:          make(map[uint64]chan response),
		subs:             make(map[string]*ClientSubscription),
		early:            make(map[string][]json.RawMessage),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}
	c.conn = conn

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	lifecycle.Go(runCtx, func(ctx context.Context) error {
		c.readLoop()
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		c.logger.Error("rpc read loop panic", "error", err)
		c.shutdown(fmt.Errorf("read loop panic: %w", err))
	}))

	c.logger.Debug("connected", "endpoint", endpoint)
	return c, nil
}

// Endpoint is the address the client is connected to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ClientState exposes the connection's bookkeeping for observability.
type ClientState struct {
	Endpoint      string `json:"endpoint"`
	Subscriptions int    `json:"subscriptions"`
	Buffered      int    `json:"buffered"`
	Error         string `json:"error,omitempty"`
}

// State implements introspection.Introspectable. Buffered counts notifications held for
// subscription ids whose subscribe reply has not been processed yet.
func (c *Client) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := ClientState{Endpoint: c.endpoint, Subscriptions: len(c.subs)}
	for _, raws := range c.early {
		state.Buffered += len(raws)
	}
	if c.err != nil {
		state.Error = c.err.Error()
	}
	return state
}

// Close ends the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.shutdown(core.ErrClosed)
	_ = c.conn.Close()
	c.cancel()
	return nil
}

// Call performs one request and decodes its result into result (if non-nil).
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(request{JSONRPC: "2.0", ID: &id, Method: method, Params: rawParams}); err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ClientSubscription is an open server-side subscription.
type ClientSubscription struct {
	ID     string
	client *Client
	unsub  string
	fn     func(json.RawMessage)
	q      *deliver.Queue
	ended  chan struct{}
	once   sync.Once
}

// Subscribe opens a subscription with method and delivers each notification's result to
// fn, in order, on a dedicated goroutine. unsubscribe names the method that closes it.
func (c *Client) Subscribe(ctx context.Context, method, unsubscribe string, params any, fn func(json.RawMessage)) (*ClientSubscription, error) {
	c.mu.Lock()
	c.subscribing++
	c.mu.Unlock()

	var id string
	if err := c.Call(ctx, method, params, &id); err != nil {
		c.mu.Lock()
		c.subscribed()
		c.mu.Unlock()
		return nil, err
	}

	q := deliver.New(context.Background(), func(err error) {
		c.logger.Error("subscription handler panic", "subscription", id, "error", err)
	})
	s := &ClientSubscription{
		ID:     id,
		client: c,
		unsub:  unsubscribe,
		fn:     fn,
		q:      q,
		ended:  make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		c.subscribed()
		s.end()
		return s, nil
	}
	c.subs[id] = s
	for _, raw := range c.early[id] {
		s.q.Post(func() { fn(raw) })
	}
	delete(c.early, id)
	c.subscribed()
	return s, nil
}

// subscribed marks a subscribe call as answered. Once none is in flight, whatever is left
// in early belongs to subscriptions that are already gone. Called with c.mu held.
func (c *Client) subscribed() {
	c.subscribing--
	if c.subscribing == 0 {
		clear(c.early)
	}
}

// Done is closed when the subscription ends, either by Unsubscribe or by connection loss.
func (s *ClientSubscription) Done() <-chan struct{} {
	return s.ended
}

// Unsubscribe stops delivery and asks the server to drop the subscription.
func (s *ClientSubscription) Unsubscribe() {
	c := s.client
	c.mu.Lock()
	_, active := c.subs[s.ID]
	delete(c.subs, s.ID)
	delete(c.early, s.ID)
	c.mu.Unlock()

	s.end()
	if !active || s.unsub == "" {
		return
	}
	lifecycle.Go(context.Background(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var ok bool
		if err := c.Call(ctx, s.unsub, []string{s.ID}, &ok); err != nil {
			c.logger.Debug("unsubscribe failed", "subscription", s.ID, "error", err)
		}
		return nil
	})
}

func (s *ClientSubscription) end() {
	s.once.Do(func() {
		s.q.Close()
		close(s.ended)
	})
}

func (c *Client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = core.ErrClosed
			}
			c.shutdown(err)
			return
		}
		c.route(msg)
	}
}

func (c *Client) route(msg []byte) {
	if method := gjson.GetBytes(msg, "method"); method.Exists() {
		subID := gjson.GetBytes(msg, "params.subscription").String()
		result := json.RawMessage(gjson.GetBytes(msg, "params.result").Raw)
		c.notify(subID, result)
		return
	}

	var resp response
	if err := json.Unmarshal(msg, &resp); err != nil {
		c.logger.Warn("dropping malformed message", "error", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (c *Client) notify(subID string, result json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.subs[subID]; ok {
		s.q.Post(func() { s.fn(result) })
		return
	}
	if c.subscribing > 0 && len(c.early[subID]) < maxEarly {
		c.early[subID] = append(c.early[subID], result)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	subs := make([]*ClientSubscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = map[string]*ClientSubscription{}
	c.early = map[string][]json.RawMessage{}
	c.mu.Unlock()

	close(c.done)
	for _, s := range subs {
		s.end()
	}
	if !errors.Is(err, core.ErrClosed) {
		c.logger.Warn("connection lost", "endpoint", c.endpoint, "error", err)
	}
}
