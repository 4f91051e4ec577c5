// Package core holds the registry's entities, the node contract, and the services that
// keep a local view in sync with remote chain state and dispatch calls against it.
package core

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/aretw0/registrar/pkg/scale"
)

// NameSuffix is appended to names typed without a top-level label.
const NameSuffix = ".dot"

// Hash is a 32-byte chain hash (blocks, extrinsics).
type Hash [32]byte

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a 0x-prefixed 32-byte hex string.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != 32 {
		return Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// DomainID is the opaque key of a domain record.
type DomainID Hash

// DomainIDFor derives the id the pallet assigns to name: blake2b-256 of its encoding.
func DomainIDFor(name string) DomainID {
	e := scale.NewEncoder()
	e.PutBytes([]byte(name))
	return DomainID(blake2b.Sum256(e.Bytes()))
}

func (id DomainID) String() string {
	return Hash(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id DomainID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *DomainID) UnmarshalText(text []byte) error {
	h, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*id = DomainID(h)
	return nil
}

// ParseDomainID decodes a 0x-prefixed domain id.
func ParseDomainID(s string) (DomainID, error) {
	h, err := ParseHash(s)
	return DomainID(h), err
}

// DomainName normalizes user input into a registrable name.
func DomainName(input string) string {
	name := strings.ToLower(strings.TrimSpace(input))
	if name == "" || strings.HasSuffix(name, NameSuffix) {
		return name
	}
	return name + NameSuffix
}

// Domain is the on-chain record.
type Domain struct {
	Name      string
	Price     *big.Int // nil: not for sale
	Wallet    string
	Owner     AccountID
	CreatedAt time.Time
}

// ForSale reports whether an asking price is set.
func (d *Domain) ForSale() bool {
	return d != nil && d.Price != nil
}

// Clone returns a deep copy.
func (d *Domain) Clone() *Domain {
	if d == nil {
		return nil
	}
	c := *d
	if d.Price != nil {
		c.Price = new(big.Int).Set(d.Price)
	}
	return &c
}

// EncodeDomain produces the storage encoding:
// {domain: Vec<u8>, price: Option<u128>, wallet: Option<Vec<u8>>, owner: [u8;32], date_created: Option<u64 ms>}.
func EncodeDomain(d *Domain) ([]byte, error) {
	e := scale.NewEncoder()
	e.PutBytes([]byte(d.Name))
	if err := e.PutOption(d.Price != nil, func(e *scale.Encoder) error {
		return e.PutU128(d.Price)
	}); err != nil {
		return nil, fmt.Errorf("encode price: %w", err)
	}
	_ = e.PutOption(d.Wallet != "", func(e *scale.Encoder) error {
		e.PutBytes([]byte(d.Wallet))
		return nil
	})
	e.PutFixed(d.Owner[:])
	_ = e.PutOption(!d.CreatedAt.IsZero(), func(e *scale.Encoder) error {
		e.PutU64(uint64(d.CreatedAt.UnixMilli()))
		return nil
	})
	return e.Bytes(), nil
}

// DecodeDomain parses a storage value. An empty value means the key holds nothing.
func DecodeDomain(value []byte) (*Domain, error) {
	if len(value) == 0 {
		return nil, nil
	}
	d := scale.NewDecoder(value)
	out := &Domain{}

	name, err := d.Bytes()
	if err != nil {
		return nil, fmt.Errorf("decode name: %w", err)
	}
	out.Name = string(name)

	if _, err := d.Option(func(d *scale.Decoder) error {
		p, err := d.U128()
		out.Price = p
		return err
	}); err != nil {
		return nil, fmt.Errorf("decode price: %w", err)
	}

	if _, err := d.Option(func(d *scale.Decoder) error {
		w, err := d.Bytes()
		out.Wallet = string(w)
		return err
	}); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}

	owner, err := d.Fixed(32)
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	copy(out.Owner[:], owner)

	if _, err := d.Option(func(d *scale.Decoder) error {
		ms, err := d.U64()
		out.CreatedAt = time.UnixMilli(int64(ms)).UTC()
		return err
	}); err != nil {
		return nil, fmt.Errorf("decode created: %w", err)
	}
	return out, nil
}

// View is the display-ready projection of a record.
type View struct {
	ID        DomainID  `json:"id"`
	Name      string    `json:"domain"`
	Price     *big.Int  `json:"price"`
	Wallet    string    `json:"wallet,omitempty"`
	Owner     AccountID `json:"owner"`
	CreatedAt time.Time `json:"date_created,omitzero"`
}

// Project builds the view of record d stored under id.
func Project(id DomainID, d *Domain) View {
	v := View{
		ID:        id,
		Name:      d.Name,
		Wallet:    d.Wallet,
		Owner:     d.Owner,
		CreatedAt: d.CreatedAt,
	}
	if d.Price != nil {
		v.Price = new(big.Int).Set(d.Price)
	}
	return v
}

// PriceText renders the price or the not-for-sale marker.
func (v View) PriceText() string {
	if v.Price == nil {
		return "Not For Sale"
	}
	return v.Price.String()
}

// VisibleWallet returns the wallet only when the viewer owns the domain.
func (v View) VisibleWallet(viewer AccountID) string {
	if viewer.IsZero() || viewer != v.Owner {
		return ""
	}
	return v.Wallet
}
