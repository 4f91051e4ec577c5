package memnode

import (
	"math/big"
	"slices"

	"github.com/aretw0/registrar/pkg/core"
)

// chainState is the committed storage of the runtime.
type chainState struct {
	count    uint32
	order    []core.DomainID
	domains  map[core.DomainID]*core.Domain
	owned    map[core.AccountID][]core.DomainID
	balances map[core.AccountID]*big.Int
}

func newChainState() *chainState {
	return &chainState{
		domains:  make(map[core.DomainID]*core.Domain),
		owned:    make(map[core.AccountID][]core.DomainID),
		balances: make(map[core.AccountID]*big.Int),
	}
}

// txn stages the writes of one extrinsic. Reads favor staged values; nothing reaches the
// committed state until commit, so a failing call leaves storage untouched.
type txn struct {
	base     *chainState
	count    *uint32
	created  []core.DomainID
	domains  map[core.DomainID]*core.Domain
	owned    map[core.AccountID][]core.DomainID
	balances map[core.AccountID]*big.Int
}

func newTxn(base *chainState) *txn {
	return &txn{
		base:     base,
		domains:  make(map[core.DomainID]*core.Domain),
		owned:    make(map[core.AccountID][]core.DomainID),
		balances: make(map[core.AccountID]*big.Int),
	}
}

func (t *txn) domainCount() uint32 {
	if t.count != nil {
		return *t.count
	}
	return t.base.count
}

func (t *txn) setDomainCount(n uint32) {
	t.count = &n
}

// domain returns a private copy of the record, or nil.
func (t *txn) domain(id core.DomainID) *core.Domain {
	if d, ok := t.domains[id]; ok {
		return d.Clone()
	}
	return t.base.domains[id].Clone()
}

func (t *txn) putDomain(id core.DomainID, d *core.Domain) {
	if t.domain(id) == nil {
		t.created = append(t.created, id)
	}
	t.domains[id] = d.Clone()
}

func (t *txn) ownedBy(a core.AccountID) []core.DomainID {
	if ids, ok := t.owned[a]; ok {
		return slices.Clone(ids)
	}
	return slices.Clone(t.base.owned[a])
}

func (t *txn) setOwned(a core.AccountID, ids []core.DomainID) {
	t.owned[a] = ids
}

func (t *txn) balance(a core.AccountID) *big.Int {
	if b, ok := t.balances[a]; ok {
		return new(big.Int).Set(b)
	}
	if b, ok := t.base.balances[a]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *txn) setBalance(a core.AccountID, b *big.Int) {
	t.balances[a] = new(big.Int).Set(b)
}

// changes reports what commit would modify.
type changes struct {
	count   bool
	domains []core.DomainID
}

func (c *changes) merge(o changes) {
	c.count = c.count || o.count
	for _, id := range o.domains {
		if !slices.Contains(c.domains, id) {
			c.domains = append(c.domains, id)
		}
	}
}

func (t *txn) commit() changes {
	var ch changes
	if t.count != nil && *t.count != t.base.count {
		t.base.count = *t.count
		ch.count = true
	}
	t.base.order = append(t.base.order, t.created...)
	for id, d := range t.domains {
		t.base.domains[id] = d
		ch.domains = append(ch.domains, id)
	}
	for a, ids := range t.owned {
		if len(ids) == 0 {
			delete(t.base.owned, a)
			continue
		}
		t.base.owned[a] = ids
	}
	for a, b := range t.balances {
		t.base.balances[a] = b
	}
	return ch
}
