package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"
)

const defaultEventBuffer = 100

// Snapshot is a consistent view of the registry at one point of the sync loop.
type Snapshot struct {
	Seq   uint64
	Count uint32
	// Keys and Records are index-aligned. A nil record was absent when fetched.
	Keys    []DomainID
	Records []*Domain
	// Views holds the presentable records, in key order.
	Views   []View
	Session Session
}

// String implements lifecycle.Event.
func (s Snapshot) String() string {
	return fmt.Sprintf("snapshot #%d: %d domains (%d listed)", s.Seq, s.Count, len(s.Views))
}

// Empty reports whether there is nothing to list.
func (s Snapshot) Empty() bool {
	return len(s.Views) == 0
}

// Select applies a presentation tab to the snapshot's views.
func (s Snapshot) Select(tab Tab) []View {
	return Select(s.Views, tab, s.Session)
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Keys = append([]DomainID(nil), s.Keys...)
	out.Records = make([]*Domain, len(s.Records))
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	out.Views = append([]View(nil), s.Views...)
	return out
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventBuffer sets the per-watcher buffer. Zero means default (100).
func WithEventBuffer(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.eventBufferSize = size
		}
	}
}

// WithSession sets the initial local account.
func WithSession(session Session) ServiceOption {
	return func(s *Service) {
		s.snap.Session = session
	}
}

// Service keeps a live copy of the registry: it follows the domain counter, re-enumerates
// the keys on every change and keeps exactly one record subscription for the current key set.
type Service struct {
	node            Node
	logger          *slog.Logger
	eventBufferSize int

	mu           sync.RWMutex
	snap         Snapshot
	gen          uint64
	reenumerated bool
	countSub     Subscription
	recordsSub   Subscription
	watchers     map[chan Snapshot]struct{}
	msgs         chan syncMsg
	started      bool
	closed       bool
	cancel       context.CancelFunc
	done         chan struct{}
}

type syncMsg struct {
	count   *uint32
	gen     uint64
	records []*Domain
	// session asks the loop to republish after a session change.
	session bool
}

// NewService creates a Service over node. Call Start to begin syncing.
func NewService(node Node, opts ...ServiceOption) *Service {
	s := &Service{
		node:            node,
		logger:          slog.Default(),
		eventBufferSize: defaultEventBuffer,
		watchers:        make(map[chan Snapshot]struct{}),
		msgs:            make(chan syncMsg, defaultEventBuffer),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the counter and runs the sync loop until ctx ends or Close is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("service already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	sub, err := s.node.SubscribeCount(runCtx, func(n uint32) {
		s.post(runCtx, syncMsg{count: &n})
	})
	if err != nil {
		cancel()
		close(s.done)
		return fmt.Errorf("subscribe domain count: %w", err)
	}

	s.mu.Lock()
	s.countSub = sub
	s.mu.Unlock()

	lifecycle.Go(runCtx, func(ctx context.Context) error {
		s.loop(ctx)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("sync loop panic", "error", err)
	}))
	return nil
}

func (s *Service) post(ctx context.Context, m syncMsg) {
	select {
	case s.msgs <- m:
	case <-ctx.Done():
	}
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.msgs:
			switch {
			case m.count != nil:
				s.resync(ctx, *m.count)
			case m.session:
				s.republish()
			default:
				s.applyRecords(ctx, m)
			}
		}
	}
}

// resync enumerates the keys for count and replaces the record subscription.
func (s *Service) resync(ctx context.Context, count uint32) {
	keys, err := s.node.DomainKeys(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("enumerate domain keys", "error", err)
		}
		return
	}

	s.mu.Lock()
	old := s.recordsSub
	s.recordsSub = nil
	s.gen++
	gen := s.gen
	s.reenumerated = false
	s.snap.Count = count
	s.snap.Keys = keys
	s.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}

	s.logger.Debug("domain keys enumerated", "count", count, "keys", len(keys), "generation", gen)

	if len(keys) == 0 {
		s.mu.Lock()
		s.snap.Records = nil
		s.snap.Views = nil
		s.mu.Unlock()
		s.publish()
		return
	}

	sub, err := s.node.SubscribeDomains(ctx, keys, func(records []*Domain) {
		s.post(ctx, syncMsg{gen: gen, records: records})
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("subscribe domain records", "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	s.recordsSub = sub
	s.mu.Unlock()
}

func (s *Service) applyRecords(ctx context.Context, m syncMsg) {
	s.mu.Lock()
	if m.gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("dropping stale records", "generation", m.gen, "current", s.gen)
		return
	}
	if len(m.records) != len(s.snap.Keys) {
		s.mu.Unlock()
		s.logger.Warn("records not aligned with keys", "records", len(m.records), "keys", len(s.snap.Keys))
		return
	}

	views := make([]View, 0, len(m.records))
	missing := false
	for i, r := range m.records {
		if r == nil {
			missing = true
			continue
		}
		views = append(views, Project(s.snap.Keys[i], r))
	}
	s.snap.Records = m.records
	s.snap.Views = views
	retry := missing && !s.reenumerated
	if retry {
		s.reenumerated = true
	}
	count := s.snap.Count
	s.mu.Unlock()

	s.publish()

	if retry {
		s.logger.Debug("record vanished, re-enumerating keys", "generation", m.gen)
		s.resync(ctx, count)
		s.mu.Lock()
		s.reenumerated = true
		s.mu.Unlock()
	}
}

// republish resends the current snapshot once the first one is out.
func (s *Service) republish() {
	s.mu.RLock()
	synced := s.snap.Seq > 0
	s.mu.RUnlock()
	if synced {
		s.publish()
	}
}

// publish sends the current snapshot to every watcher, dropping the oldest buffered
// snapshot of a slow watcher.
func (s *Service) publish() {
	s.mu.Lock()
	s.snap.Seq++
	snap := s.snap.clone()
	watchers := make([]chan Snapshot, 0, len(s.watchers))
	for ch := range s.watchers {
		watchers = append(watchers, ch)
	}
	s.mu.Unlock()

	for _, ch := range watchers {
		s.deliver(ch, snap)
	}
}

func (s *Service) deliver(ch chan Snapshot, snap Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.watchers[ch]; !ok {
		return
	}
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Watch streams snapshots until ctx ends or the service closes. The current snapshot, if
// any, is delivered first.
func (s *Service) Watch(ctx context.Context) (<-chan Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Snapshot, s.eventBufferSize)
	if s.snap.Seq > 0 {
		ch <- s.snap.clone()
	}
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.removeWatcher(ch)
	}()
	return ch, nil
}

func (s *Service) removeWatcher(ch chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchers[ch]; ok {
		delete(s.watchers, ch)
		close(ch)
	}
}

// Snapshot returns the latest snapshot.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Session returns the local account.
func (s *Service) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Session
}

// SetAccount switches the local account. A running service republishes the current
// snapshot from its sync loop.
func (s *Service) SetAccount(account AccountID) Session {
	s.mu.Lock()
	s.snap.Session = s.snap.Session.WithAccount(account)
	session := s.snap.Session
	running := s.started && !s.closed
	s.mu.Unlock()

	if running {
		select {
		case s.msgs <- syncMsg{session: true}:
		case <-s.done:
		}
	}
	return session
}

// Close cancels every subscription and ends all watch streams.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		close(s.done)
		return nil
	}
	cancel()
	<-s.done
	return nil
}

// Done is closed once the sync loop has stopped.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) teardown() {
	s.mu.Lock()
	countSub, recordsSub := s.countSub, s.recordsSub
	s.countSub, s.recordsSub = nil, nil
	s.closed = true
	watchers := s.watchers
	s.watchers = make(map[chan Snapshot]struct{})
	s.mu.Unlock()

	if recordsSub != nil {
		recordsSub.Unsubscribe()
	}
	if countSub != nil {
		countSub.Unsubscribe()
	}
	for ch := range watchers {
		close(ch)
	}
}
