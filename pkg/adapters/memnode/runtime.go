package memnode

import (
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/aretw0/registrar/pkg/core"
)

// origin is who a call is dispatched as. A zero signer with root set is the root origin.
type origin struct {
	signer core.AccountID
	root   bool
}

// runtime executes calls against a staged transaction.
type runtime struct {
	maxOwned int
	ed       *big.Int
	sudo     core.AccountID
	now      func() time.Time
}

// apply dispatches xt and returns the dispatch error, if any.
func (r *runtime) apply(t *txn, xt core.Extrinsic) error {
	o := origin{signer: xt.Signer}
	if xt.Mode == core.Sudo {
		if xt.Signer != r.sudo {
			return core.ErrRequireSudo
		}
		o = origin{root: true}
	}

	spec, err := core.LookupCall(xt.Call.Pallet, xt.Call.Method)
	if err != nil {
		return err
	}
	if spec.RootOnly && !o.root {
		return core.ErrBadOrigin
	}

	switch spec.Name() {
	case core.PalletRegistry + "." + core.MethodCreateDomain:
		return r.createDomain(t, o, xt.Call)
	case core.PalletRegistry + "." + core.MethodSetPrice:
		return r.setPrice(t, o, xt.Call)
	case core.PalletRegistry + "." + core.MethodSetWallet:
		return r.setWallet(t, o, xt.Call)
	case core.PalletRegistry + "." + core.MethodTransfer:
		return r.transferDomain(t, o, xt.Call)
	case core.PalletRegistry + "." + core.MethodBuyDomain:
		return r.buyDomain(t, o, xt.Call)
	case core.PalletBalances + "." + core.MethodTransfer:
		return r.transferBalance(t, o, xt.Call)
	case core.PalletBalances + "." + core.MethodSetBalance:
		return r.setFreeBalance(t, xt.Call)
	default:
		return fmt.Errorf("%w: %s", core.ErrUnknownCall, spec.Name())
	}
}

func ensureSigned(o origin) error {
	if o.root || o.signer.IsZero() {
		return core.ErrBadOrigin
	}
	return nil
}

// ownedDomain loads id and checks that o owns it.
func ownedDomain(t *txn, o origin, id core.DomainID) (*core.Domain, error) {
	d := t.domain(id)
	if d == nil {
		return nil, core.ErrDomainNotFound
	}
	if d.Owner != o.signer {
		return nil, core.ErrNotOwner
	}
	return d, nil
}

func (r *runtime) createDomain(t *txn, o origin, c core.Call) error {
	if err := ensureSigned(o); err != nil {
		return err
	}
	name, err := core.Arg[[]byte](c, 0)
	if err != nil {
		return err
	}

	id := core.DomainIDFor(string(name))
	if t.domain(id) != nil {
		return core.ErrDomainExists
	}
	count := t.domainCount()
	if count == ^uint32(0) {
		return core.ErrCountOverflow
	}
	owned := t.ownedBy(o.signer)
	if len(owned) >= r.maxOwned {
		return core.ErrExceedMaxOwned
	}

	t.putDomain(id, &core.Domain{
		Name:      string(name),
		Owner:     o.signer,
		CreatedAt: r.now().UTC().Truncate(time.Millisecond),
	})
	t.setOwned(o.signer, append(owned, id))
	t.setDomainCount(count + 1)
	return nil
}

func (r *runtime) setPrice(t *txn, o origin, c core.Call) error {
	if err := ensureSigned(o); err != nil {
		return err
	}
	id, err := core.Arg[core.DomainID](c, 0)
	if err != nil {
		return err
	}
	price, err := core.Arg[*big.Int](c, 1)
	if err != nil {
		return err
	}
	d, err := ownedDomain(t, o, id)
	if err != nil {
		return err
	}
	d.Price = price
	t.putDomain(id, d)
	return nil
}

func (r *runtime) setWallet(t *txn, o origin, c core.Call) error {
	if err := ensureSigned(o); err != nil {
		return err
	}
	id, err := core.Arg[core.DomainID](c, 0)
	if err != nil {
		return err
	}
	wallet, err := core.Arg[[]byte](c, 1)
	if err != nil {
		return err
	}
	d, err := ownedDomain(t, o, id)
	if err != nil {
		return err
	}
	d.Wallet = string(wallet)
	t.putDomain(id, d)
	return nil
}

func (r *runtime) transferDomain(t *txn, o origin, c core.Call) error {
	if err := ensureSigned(o); err != nil {
		return err
	}
	to, err := core.Arg[core.AccountID](c, 0)
	if err != nil {
		return err
	}
	id, err := core.Arg[core.DomainID](c, 1)
	if err != nil {
		return err
	}
	d, err := ownedDomain(t, o, id)
	if err != nil {
		return err
	}
	if to == o.signer {
		return core.ErrTransferToSelf
	}
	return r.moveDomain(t, id, d, to)
}

func (r *runtime) buyDomain(t *txn, o origin, c core.Call) error {
	if err := ensureSigned(o); err != nil {
		return err
	}
	id, err := core.Arg[core.DomainID](c, 0)
	if err != nil {
		return err
	}
	d := t.domain(id)
	if d == nil {
		return core.ErrDomainNotFound
	}
	if d.Owner == o.signer {
		return core.ErrBuyerIsOwner
	}
	if d.Price == nil {
		return core.ErrNotForSale
	}
	if err := r.transferFunds(t, o.signer, d.Owner, d.Price); err != nil {
		return err
	}
	return r.moveDomain(t, id, d, o.signer)
}

// moveDomain hands d to a new owner and takes it off the market.
func (r *runtime) moveDomain(t *txn, id core.DomainID, d *core.Domain, to core.AccountID) error {
	recipient := t.ownedBy(to)
	if len(recipient) >= r.maxOwned {
		return core.ErrExceedMaxOwned
	}
	prev := t.ownedBy(d.Owner)
	if i := slices.Index(prev, id); i >= 0 {
		prev = slices.Delete(prev, i, i+1)
	}
	t.setOwned(d.Owner, prev)
	t.setOwned(to, append(recipient, id))

	d.Owner = to
	d.Price = nil
	t.putDomain(id, d)
	return nil
}

// transferFunds moves value keeping the sender above the existential deposit.
func (r *runtime) transferFunds(t *txn, from, to core.AccountID, value *big.Int) error {
	fromBal := t.balance(from)
	left := new(big.Int).Sub(fromBal, value)
	if left.Cmp(r.ed) < 0 {
		return core.ErrNotEnoughBalance
	}
	t.setBalance(from, left)
	t.setBalance(to, new(big.Int).Add(t.balance(to), value))
	return nil
}

func (r *runtime) transferBalance(t *txn, o origin, c core.Call) error {
	if err := ensureSigned(o); err != nil {
		return err
	}
	dest, err := core.Arg[core.AccountID](c, 0)
	if err != nil {
		return err
	}
	value, err := core.Arg[*big.Int](c, 1)
	if err != nil {
		return err
	}
	return r.transferFunds(t, o.signer, dest, value)
}

func (r *runtime) setFreeBalance(t *txn, c core.Call) error {
	who, err := core.Arg[core.AccountID](c, 0)
	if err != nil {
		return err
	}
	free, err := core.Arg[*big.Int](c, 1)
	if err != nil {
		return err
	}
	t.setBalance(who, free)
	return nil
}
