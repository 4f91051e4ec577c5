package core_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/registrar/pkg/core"
	"github.com/aretw0/registrar/pkg/scale"
)

func sampleViews() []core.View {
	mk := func(name string, owner core.AccountID, p *big.Int) core.View {
		return core.Project(core.DomainIDFor(name), &core.Domain{Name: name, Owner: owner, Price: p})
	}
	return []core.View{
		mk("alpha.dot", alice, price(10)),
		mk("beta.dot", alice, nil),
		mk("shop.dot", bob, price(3)),
		mk("shoes.dot", bob, nil),
	}
}

func TestOffers(t *testing.T) {
	views := sampleViews()

	// Owner manages, never buys
	assert.Equal(t, []core.Offer{core.OfferSetPrice, core.OfferSetWallet, core.OfferTransfer}, core.Offers(views[0], alice))
	// Non-owner buys only when for sale
	assert.Equal(t, []core.Offer{core.OfferBuy}, core.Offers(views[2], alice))
	assert.Empty(t, core.Offers(views[3], alice))
	// No account: read-only plus buy
	assert.Equal(t, []core.Offer{core.OfferBuy}, core.Offers(views[0], core.AccountID{}))
}

func TestSelect(t *testing.T) {
	views := sampleViews()

	assert.Len(t, core.Select(views, core.TabAll, core.Session{}), 4)
	assert.Empty(t, core.Select(views, core.TabMine, core.Session{}))
	assert.Len(t, core.Select(views, core.TabMine, core.Session{Account: bob}), 2)

	sale := core.Select(views, core.TabSale, core.Session{})
	require.Len(t, sale, 2)
	assert.Equal(t, "alpha.dot", sale[0].Name)
	assert.Equal(t, "shop.dot", sale[1].Name)
}

func TestMatch(t *testing.T) {
	views := sampleViews()

	got, err := core.Match(views, "sho*")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = core.Match(views, "")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = core.Match(views, "[")
	assert.Error(t, err)
}

func TestCallCatalog(t *testing.T) {
	spec, err := core.LookupCall(core.PalletRegistry, core.MethodSetPrice)
	require.NoError(t, err)

	// 1. Empty optional means None
	call, err := spec.ParseArgs([]string{core.DomainIDFor("a.dot").String(), ""})
	require.NoError(t, err)
	p, err := core.Arg[*big.Int](call, 1)
	require.NoError(t, err)
	assert.Nil(t, p)

	// 2. Encode/decode keeps argument types
	call, err = spec.ParseArgs([]string{core.DomainIDFor("a.dot").String(), "42"})
	require.NoError(t, err)
	e := scale.NewEncoder()
	require.NoError(t, spec.EncodeArgs(e, call))
	back, err := spec.DecodeArgs(scale.NewDecoder(e.Bytes()))
	require.NoError(t, err)
	p, err = core.Arg[*big.Int](back, 1)
	require.NoError(t, err)
	assert.Equal(t, "42", p.String())

	// 3. Bad inputs
	_, err = spec.ParseArgs([]string{"zz", "1"})
	assert.Error(t, err)
	_, err = spec.ParseArgs([]string{core.DomainIDFor("a.dot").String(), "-1"})
	assert.Error(t, err)
	_, err = core.LookupCall("nope", "nope")
	assert.ErrorIs(t, err, core.ErrUnknownCall)

	sudo, err := core.LookupCall(core.PalletBalances, core.MethodSetBalance)
	require.NoError(t, err)
	assert.True(t, sudo.RootOnly)

	m, err := core.ParseMode("sudo-tx")
	require.NoError(t, err)
	assert.Equal(t, core.Sudo, m)
}

func TestActionExtrinsic(t *testing.T) {
	session := core.Session{Account: alice}

	// Buy carries the price for display only
	v := sampleViews()[2]
	xt, err := core.BuyAction(v).Extrinsic(session)
	require.NoError(t, err)
	require.Len(t, xt.Call.Args, 1)
	assert.Equal(t, v.ID, xt.Call.Args[0])

	// Clearing the wallet sends None
	xt, err = core.SetWalletAction(v.ID, "").Extrinsic(session)
	require.NoError(t, err)
	wallet, err := core.Arg[[]byte](xt.Call, 1)
	require.NoError(t, err)
	assert.Nil(t, wallet)

	// Transfer requires a receiver
	_, err = core.TransferAction("", v.ID).Extrinsic(session)
	assert.ErrorIs(t, err, core.ErrMissingParam)

	// Prices are u128
	maxPrice := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	xt, err = core.SetPriceAction(v.ID, maxPrice.String()).Extrinsic(session)
	require.NoError(t, err)
	set, err := core.Arg[*big.Int](xt.Call, 1)
	require.NoError(t, err)
	assert.Zero(t, maxPrice.Cmp(set))

	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err = core.SetPriceAction(v.ID, tooBig.String()).Extrinsic(session)
	assert.ErrorContains(t, err, "does not fit in u128")

	// Unsigned calls need no account
	a := core.CreateDomainAction("shop")
	a.Mode = core.Unsigned
	xt, err = a.Extrinsic(core.Session{})
	require.NoError(t, err)
	assert.True(t, xt.Signer.IsZero())
	name, err := core.Arg[[]byte](xt.Call, 0)
	require.NoError(t, err)
	assert.Equal(t, "shop.dot", string(name))
}
