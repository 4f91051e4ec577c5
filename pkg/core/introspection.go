package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	EventBufferSize int    `json:"event_buffer_size"`
	NodeType        string `json:"node_type"`
	Account         string `json:"account,omitempty"`
	Seq             uint64 `json:"seq"`
	Count           uint32 `json:"count"`
	Keys            int    `json:"keys"`
	Listed          int    `json:"listed"`
	Generation      uint64 `json:"generation"`
	Watchers        int    `json:"watchers"`
	Closed          bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodeType := "unknown"
	if s.node != nil {
		nodeType = "node"
		if comp, ok := s.node.(introspection.Component); ok {
			nodeType = comp.ComponentType()
		}
	}

	var account string
	if !s.snap.Session.Account.IsZero() {
		account = s.snap.Session.Account.String()
	}

	return ServiceState{
		EventBufferSize: s.eventBufferSize,
		NodeType:        nodeType,
		Account:         account,
		Seq:             s.snap.Seq,
		Count:           s.snap.Count,
		Keys:            len(s.snap.Keys),
		Listed:          len(s.snap.Views),
		Generation:      s.gen,
		Watchers:        len(s.watchers),
		Closed:          s.closed,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "registry-service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
