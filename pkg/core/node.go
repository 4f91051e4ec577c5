package core

import (
	"context"
	"sync"
)

// Node is the remote chain as seen by the registry. Implementations own the connection;
// callers only hold subscription handles.
type Node interface {
	// DomainCount queries the counter through the node's custom read-only RPC.
	DomainCount(ctx context.Context) (uint32, error)

	// SubscribeCount delivers the counter now and on every change.
	SubscribeCount(ctx context.Context, fn func(uint32)) (Subscription, error)

	// DomainKeys enumerates the keys of every entry in the Domains map.
	DomainKeys(ctx context.Context) ([]DomainID, error)

	// SubscribeDomains delivers the records for ids now and whenever one of them changes.
	// The slice is index-aligned with ids; absent records are nil.
	SubscribeDomains(ctx context.Context, ids []DomainID, fn func([]*Domain)) (Subscription, error)

	// Submit hands an extrinsic to the transaction pool and watches its progress.
	// Errors returned here happened before broadcast.
	Submit(ctx context.Context, xt Extrinsic) (TxWatch, error)
}

// Subscription is a cancellable push stream.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

type onceSubscription struct {
	once sync.Once
	fn   func()
}

func (s *onceSubscription) Unsubscribe() {
	s.once.Do(s.fn)
}

// NewSubscription wraps fn so that it runs at most once.
func NewSubscription(fn func()) Subscription {
	return &onceSubscription{fn: fn}
}

// Extrinsic is a call together with its authorization.
type Extrinsic struct {
	Mode   Mode
	Signer AccountID
	Call   Call
}

// TxStatusKind mirrors the transaction pool's status notifications.
type TxStatusKind string

const (
	StatusFuture          TxStatusKind = "Future"
	StatusReady           TxStatusKind = "Ready"
	StatusBroadcast       TxStatusKind = "Broadcast"
	StatusInBlock         TxStatusKind = "InBlock"
	StatusRetracted       TxStatusKind = "Retracted"
	StatusFinalityTimeout TxStatusKind = "FinalityTimeout"
	StatusFinalized       TxStatusKind = "Finalized"
	StatusUsurped         TxStatusKind = "Usurped"
	StatusDropped         TxStatusKind = "Dropped"
	StatusInvalid         TxStatusKind = "Invalid"
)

// TxStatus is one notification of a watched extrinsic.
type TxStatus struct {
	Kind      TxStatusKind
	BlockHash Hash
	// Err carries the dispatch error of an extrinsic included in BlockHash.
	Err error
}

// Terminal reports whether no further notification follows.
func (s TxStatus) Terminal() bool {
	switch s.Kind {
	case StatusFinalized, StatusUsurped, StatusDropped, StatusInvalid, StatusFinalityTimeout:
		return true
	}
	return false
}

// TxWatch streams the status of one submitted extrinsic.
type TxWatch interface {
	Subscription

	// Hash identifies the extrinsic.
	Hash() Hash

	// Updates is closed after a terminal status or Unsubscribe.
	Updates() <-chan TxStatus
}
