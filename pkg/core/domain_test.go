package core_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/registrar/pkg/core"
)

func TestAccountID_SS58(t *testing.T) {
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", alice.String())

	parsed, err := core.ParseAccountID("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)
	assert.Equal(t, alice, parsed)

	parsed, err = core.ParseAccountID("//Bob")
	require.NoError(t, err)
	assert.Equal(t, bob, parsed)

	parsed, err = core.ParseAccountID(alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, alice, parsed)

	_, err = core.ParseAccountID("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	assert.Error(t, err, "checksum must be verified")
	_, err = core.ParseAccountID("")
	assert.Error(t, err)
}

func TestDomainName(t *testing.T) {
	assert.Equal(t, "shop.dot", core.DomainName("  Shop "))
	assert.Equal(t, "shop.dot", core.DomainName("shop.dot"))
	assert.Equal(t, "", core.DomainName(" "))
}

func TestDomainID(t *testing.T) {
	a := core.DomainIDFor("alpha.dot")
	assert.Equal(t, a, core.DomainIDFor("alpha.dot"))
	assert.NotEqual(t, a, core.DomainIDFor("beta.dot"))

	parsed, err := core.ParseDomainID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = core.ParseDomainID("0x1234")
	assert.Error(t, err)
}

func TestDomainCodec(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000).UTC()
	in := &core.Domain{Name: "alpha.dot", Price: price(1_000_000_000_000), Wallet: "5Dwallet", Owner: alice, CreatedAt: created}

	raw, err := core.EncodeDomain(in)
	require.NoError(t, err)
	out, err := core.DecodeDomain(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Optional fields absent
	bare := &core.Domain{Name: "beta.dot", Owner: bob}
	raw, err = core.EncodeDomain(bare)
	require.NoError(t, err)
	out, err = core.DecodeDomain(raw)
	require.NoError(t, err)
	assert.Nil(t, out.Price)
	assert.Empty(t, out.Wallet)
	assert.True(t, out.CreatedAt.IsZero())

	// Empty value is an absent record
	out, err = core.DecodeDomain(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = core.DecodeDomain([]byte{0x08, 'a'})
	assert.Error(t, err)
}

func TestView(t *testing.T) {
	id := core.DomainIDFor("alpha.dot")
	d := &core.Domain{Name: "alpha.dot", Wallet: "secret", Owner: alice}
	v := core.Project(id, d)

	assert.Equal(t, "Not For Sale", v.PriceText())
	assert.Equal(t, "secret", v.VisibleWallet(alice))
	assert.Empty(t, v.VisibleWallet(bob))
	assert.Empty(t, v.VisibleWallet(core.AccountID{}))

	d.Price = price(3)
	assert.Nil(t, v.Price, "views do not alias records")
	v = core.Project(id, d)
	assert.Equal(t, "3", v.PriceText())

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"domain":"alpha.dot"`)
	assert.Contains(t, string(raw), `"owner":"`+alice.String()+`"`)
	assert.NotContains(t, string(raw), "date_created")
}

func TestDispatchError(t *testing.T) {
	de := core.AsDispatchError(core.ErrDomainExists)
	assert.Equal(t, "SubstrateKitties", de.Pallet)
	assert.Equal(t, "DomainIsset", de.Name)
	assert.ErrorIs(t, de, core.ErrDomainExists)

	other := core.AsDispatchError(assert.AnError)
	assert.Equal(t, "System", other.Pallet)
	assert.Equal(t, "Other", other.Name)

	decoded := &core.DispatchError{}
	require.NoError(t, json.Unmarshal([]byte(`{"pallet":"SubstrateKitties","error":"NotdomainOwner"}`), decoded))
	assert.ErrorIs(t, decoded, core.ErrNotOwner)
}
