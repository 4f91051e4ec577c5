package core

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// SS58Prefix is the generic substrate address format.
const SS58Prefix = 42

var ss58Pre = []byte("SS58PRE")

// AccountID is a 32-byte public key identifying an account on the chain.
type AccountID [32]byte

// DevAccounts are the well-known development keys, addressable by name.
var DevAccounts = map[string]AccountID{
	"alice":   mustHex32("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"),
	"bob":     mustHex32("8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"),
	"charlie": mustHex32("90b5ab205c6974c9ea841be688864633dc9ca8a357843eeacf2314649965fe22"),
}

// String renders the account as an SS58 address.
func (a AccountID) String() string {
	payload := make([]byte, 0, 35)
	payload = append(payload, SS58Prefix)
	payload = append(payload, a[:]...)
	sum := ss58Checksum(payload)
	payload = append(payload, sum[0], sum[1])
	return base58.Encode(payload)
}

// Hex renders the raw public key as 0x-prefixed hex.
func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether no account is set.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// MarshalText implements encoding.TextMarshaler.
func (a AccountID) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccountID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = AccountID{}
		return nil
	}
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAccountID accepts a dev account name, an SS58 address or a 0x-prefixed public key.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AccountID{}, errors.New("empty account")
	}
	if dev, ok := DevAccounts[strings.ToLower(strings.TrimPrefix(s, "//"))]; ok {
		return dev, nil
	}
	if strings.HasPrefix(s, "0x") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil || len(raw) != 32 {
			return AccountID{}, fmt.Errorf("invalid account public key %q", s)
		}
		var a AccountID
		copy(a[:], raw)
		return a, nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("invalid ss58 address %q: %w", s, err)
	}
	if len(raw) != 35 || raw[0] >= 64 {
		return AccountID{}, fmt.Errorf("unsupported ss58 address %q", s)
	}
	sum := ss58Checksum(raw[:33])
	if !bytes.Equal(sum[:2], raw[33:]) {
		return AccountID{}, fmt.Errorf("bad ss58 checksum for %q", s)
	}
	var a AccountID
	copy(a[:], raw[1:33])
	return a, nil
}

func ss58Checksum(payload []byte) [64]byte {
	return blake2b.Sum512(append(append([]byte{}, ss58Pre...), payload...))
}

func mustHex32(s string) [32]byte {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		panic("invalid 32-byte hex constant: " + s)
	}
	var out [32]byte
	copy(out[:], raw)
	return out
}

// Session is the explicitly passed selection of the local account.
// It is a value: updates produce a new Session.
type Session struct {
	Account AccountID
}

// WithAccount returns a copy of the session bound to account.
func (s Session) WithAccount(account AccountID) Session {
	s.Account = account
	return s
}

// Owns reports whether the session's account is the given owner.
func (s Session) Owns(owner AccountID) bool {
	return !s.Account.IsZero() && s.Account == owner
}
