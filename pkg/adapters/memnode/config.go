// Package memnode is an in-process development chain running the registry runtime.
// It implements core.Node directly and backs the dev node served over JSON-RPC.
package memnode

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/aretw0/registrar/pkg/core"
)

// Defaults of the development runtime.
const (
	DefaultMaxDomainOwned = 9999
)

// DefaultEndowment is the free balance of each dev account at genesis (1e18 units).
var DefaultEndowment = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Config holds the configuration of the dev chain.
type Config struct {
	// BlockTime is the authoring interval. Zero seals a block as soon as a transaction arrives.
	BlockTime time.Duration
	// MaxDomainOwned caps the domains one account may hold.
	MaxDomainOwned int
	// ExistentialDeposit is the balance a paying account must keep.
	ExistentialDeposit *big.Int
	// SudoKey may dispatch root-only calls.
	SudoKey core.AccountID
	// Endowed are the genesis balances. Nil endows every dev account.
	Endowed map[core.AccountID]*big.Int
	// Now is the timestamp source for created domains.
	Now func() time.Time
	// StateFile persists chain state across restarts when set.
	StateFile string
	Logger    *slog.Logger
	// OnBlock is called after every sealed block.
	OnBlock func(Block)
}

func (c Config) withDefaults() Config {
	if c.MaxDomainOwned <= 0 {
		c.MaxDomainOwned = DefaultMaxDomainOwned
	}
	if c.ExistentialDeposit == nil {
		c.ExistentialDeposit = big.NewInt(1)
	}
	if c.SudoKey.IsZero() {
		c.SudoKey = core.DevAccounts["alice"]
	}
	if c.Endowed == nil {
		c.Endowed = make(map[core.AccountID]*big.Int, len(core.DevAccounts))
		for _, a := range core.DevAccounts {
			c.Endowed[a] = new(big.Int).Set(DefaultEndowment)
		}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Block summarizes one sealed block.
type Block struct {
	Number     uint64
	Hash       core.Hash
	Extrinsics int
	Failed     int
}
