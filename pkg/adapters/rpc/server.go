package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/aretw0/registrar/pkg/core"
)

// Backend is the chain a Server exposes.
type Backend interface {
	core.Node
	Storage(key []byte) ([]byte, error)
	StorageKeys(prefix []byte) [][]byte
	Head() core.Hash
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChainName sets the system_chain answer.
func WithChainName(name string) ServerOption {
	return func(s *Server) {
		s.chain = name
	}
}

// WithSubscriptionHook is called with +1/-1 as subscriptions open and close.
func WithSubscriptionHook(fn func(delta int)) ServerOption {
	return func(s *Server) {
		s.onSubscription = fn
	}
}

// Server serves the node's JSON-RPC methods over websocket. It is an http.Handler.
type Server struct {
	backend        Backend
	logger         *slog.Logger
	chain          string
	onSubscription func(int)
	upgrader       websocket.Upgrader
}

// NewServer creates a server for backend.
func NewServer(backend Backend, opts ...ServerOption) *Server {
	s := &Server{
		backend: backend,
		logger:  slog.Default(),
		chain:   "Registrar Development",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the connection and serves requests until the peer leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	sess := &session{
		server: s,
		conn:   conn,
		subs:   make(map[string]core.Subscription),
		ctx:    ctx,
	}
	defer cancel()
	defer sess.close()

	s.logger.Debug("peer connected", "remote", r.RemoteAddr)
	sess.serve()
}

type session struct {
	server  *Server
	conn    *websocket.Conn
	ctx     context.Context
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]core.Subscription
}

func (s *session) serve() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.server.logger.Debug("peer read failed", "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			s.reply(0, nil, &Error{Code: CodeParse, Message: "Parse error"})
			continue
		}
		if req.ID == nil {
			continue
		}
		result, after, rpcErr := s.handle(req)
		s.reply(*req.ID, result, rpcErr)
		if after != nil && rpcErr == nil {
			after()
		}
	}
}

func (s *session) close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = map[string]core.Subscription{}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
		s.server.subscriptionDelta(-1)
	}
	_ = s.conn.Close()
}

func (s *Server) subscriptionDelta(delta int) {
	if s.onSubscription != nil {
		s.onSubscription(delta)
	}
}

func (s *session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *session) reply(id uint64, result any, rpcErr *Error) {
	resp := response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &Error{Code: CodeInternal, Message: "Internal error", Data: err.Error()}
		} else {
			resp.Result = raw
		}
	}
	if err := s.write(resp); err != nil {
		s.server.logger.Debug("reply failed", "error", err)
	}
}

func (s *session) notify(method, subID string, result any) {
	if err := s.write(notification{JSONRPC: "2.0", Method: method, Params: notificationParams{Subscription: subID, Result: result}}); err != nil {
		s.server.logger.Debug("notification failed", "method", method, "error", err)
	}
}

func invalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params", Data: msg}
}

func internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "Internal error", Data: err.Error()}
}

// handle runs one request. after, if set, runs once the reply has been written.
func (s *session) handle(req request) (result any, after func(), rpcErr *Error) {
	params := gjson.ParseBytes(req.Params)
	backend := s.server.backend

	switch req.Method {
	case MethodSystemChain:
		return s.server.chain, nil, nil

	case MethodChainHead:
		return backend.Head().String(), nil, nil

	case MethodDomainCount:
		n, err := backend.DomainCount(s.ctx)
		if err != nil {
			return nil, nil, internal(err)
		}
		return n, nil, nil

	case MethodGetStorage:
		key, err := decodeHex(params.Get("0").String())
		if err != nil {
			return nil, nil, invalidParams(err.Error())
		}
		value, err := backend.Storage(key)
		if err != nil {
			return nil, nil, internal(err)
		}
		if len(value) == 0 {
			return nil, nil, nil
		}
		return encodeHex(value), nil, nil

	case MethodGetKeysPaged:
		return s.keysPaged(params)

	case MethodSubscribeStorage:
		return s.subscribeStorage(params)

	case MethodUnsubscribe, MethodUnwatch:
		return s.unsubscribe(params.Get("0").String()), nil, nil

	case MethodSubmitAndWatch:
		return s.submitAndWatch(params)

	default:
		return nil, nil, &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: req.Method}
	}
}

func (s *session) keysPaged(params gjson.Result) (any, func(), *Error) {
	prefix, err := decodeHex(params.Get("0").String())
	if err != nil {
		return nil, nil, invalidParams(err.Error())
	}
	count := int(params.Get("1").Int())
	if count <= 0 {
		return nil, nil, invalidParams("count must be positive")
	}
	start := strings.ToLower(params.Get("2").String())

	keys := make([]string, 0, count)
	started := start == ""
	for _, k := range s.server.backend.StorageKeys(prefix) {
		h := encodeHex(k)
		if !started {
			started = h == start
			continue
		}
		keys = append(keys, h)
		if len(keys) == count {
			break
		}
	}
	return keys, nil, nil
}

func (s *session) track(sub core.Subscription) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()
	s.server.subscriptionDelta(1)
	return id
}

func (s *session) unsubscribe(id string) bool {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		sub.Unsubscribe()
		s.server.subscriptionDelta(-1)
	}
	return ok
}

// lateSubscription is tracked before the backend subscription exists, since the reply
// carrying the id must precede the first notification.
type lateSubscription struct {
	mu       sync.Mutex
	subs     []core.Subscription
	canceled bool
}

func (l *lateSubscription) add(sub core.Subscription) {
	l.mu.Lock()
	if l.canceled {
		l.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	l.subs = append(l.subs, sub)
	l.mu.Unlock()
}

func (l *lateSubscription) Unsubscribe() {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.canceled = true
	l.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (s *session) subscribeStorage(params gjson.Result) (any, func(), *Error) {
	countKey := encodeHex(core.CountStorageKey())
	var (
		wantCount bool
		ids       []core.DomainID
		idKeys    []string
	)
	for _, k := range params.Get("0").Array() {
		key := strings.ToLower(k.String())
		if key == countKey {
			wantCount = true
			continue
		}
		raw, err := decodeHex(key)
		if err != nil {
			return nil, nil, invalidParams(err.Error())
		}
		id, err := core.DomainIDFromStorageKey(raw)
		if err != nil || encodeHex(core.DomainStorageKey(id)) != key {
			return nil, nil, invalidParams("unsupported storage key " + key)
		}
		ids = append(ids, id)
		idKeys = append(idKeys, key)
	}
	if !wantCount && len(ids) == 0 {
		return nil, nil, invalidParams("no storage keys")
	}

	late := &lateSubscription{}
	subID := s.track(late)
	backend := s.server.backend

	after := func() {
		if wantCount {
			sub, err := backend.SubscribeCount(s.ctx, func(n uint32) {
				value := encodeHex(core.EncodeCount(n))
				s.notify(NotifyStorage, subID, storageChangeSet{
					Block:   backend.Head().String(),
					Changes: [][2]*string{{&countKey, &value}},
				})
			})
			if err != nil {
				s.server.logger.Warn("subscribe count", "error", err)
			} else {
				late.add(sub)
			}
		}
		if len(ids) > 0 {
			sub, err := backend.SubscribeDomains(s.ctx, ids, func(records []*core.Domain) {
				changes := make([][2]*string, len(records))
				for i, d := range records {
					key := idKeys[i]
					changes[i] = [2]*string{&key, nil}
					if d == nil {
						continue
					}
					raw, err := core.EncodeDomain(d)
					if err != nil {
						s.server.logger.Warn("encode domain", "error", err)
						continue
					}
					value := encodeHex(raw)
					changes[i][1] = &value
				}
				s.notify(NotifyStorage, subID, storageChangeSet{Block: backend.Head().String(), Changes: changes})
			})
			if err != nil {
				s.server.logger.Warn("subscribe domains", "error", err)
			} else {
				late.add(sub)
			}
		}
	}
	return subID, after, nil
}

func (s *session) submitAndWatch(params gjson.Result) (any, func(), *Error) {
	raw, err := decodeHex(params.Get("0").String())
	if err != nil {
		return nil, nil, invalidParams(err.Error())
	}
	xt, err := DecodeDevExtrinsic(raw)
	if err != nil {
		return nil, nil, &Error{Code: CodeInvalidTransaction, Message: "Invalid Transaction", Data: err.Error()}
	}
	watch, err := s.server.backend.Submit(s.ctx, xt)
	if err != nil {
		if errors.Is(err, core.ErrInvalidTransaction) || errors.Is(err, core.ErrUnknownCall) {
			return nil, nil, &Error{Code: CodeInvalidTransaction, Message: "Invalid Transaction", Data: err.Error()}
		}
		return nil, nil, internal(err)
	}

	subID := s.track(watch)
	after := func() {
		lifecycle.Go(s.ctx, func(ctx context.Context) error {
			for st := range watch.Updates() {
				s.notify(NotifyExtrinsic, subID, StatusJSON(st))
			}
			s.unsubscribe(subID)
			return nil
		})
	}
	return subID, after, nil
}

// StatusJSON renders a status the way author_extrinsicUpdate carries it.
func StatusJSON(st core.TxStatus) any {
	hashed := func(key string) map[string]any {
		m := map[string]any{key: st.BlockHash.String()}
		if st.Err != nil {
			m["dispatchError"] = core.AsDispatchError(st.Err)
		}
		return m
	}
	switch st.Kind {
	case core.StatusFuture:
		return "future"
	case core.StatusReady:
		return "ready"
	case core.StatusBroadcast:
		return map[string]any{"broadcast": []string{}}
	case core.StatusInBlock:
		return hashed("inBlock")
	case core.StatusRetracted:
		return hashed("retracted")
	case core.StatusFinalityTimeout:
		return hashed("finalityTimeout")
	case core.StatusFinalized:
		return hashed("finalized")
	case core.StatusUsurped:
		return hashed("usurped")
	case core.StatusDropped:
		return "dropped"
	default:
		return "invalid"
	}
}
