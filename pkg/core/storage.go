package core

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/aretw0/registrar/pkg/scale"
)

// Storage layout of the registry pallet.
//
//	DomainCnt               => u32
//	Domains      [Twox64Concat(id)]    => Domain
//	DomainsOwned [Twox64Concat(owner)] => Vec<id>
const (
	PalletPrefix = "SubstrateKitties"
	CountItem    = "DomainCnt"
	DomainsItem  = "Domains"
	OwnedItem    = "DomainsOwned"
)

// Twox128 is the 128-bit xxhash used for pallet and item prefixes.
func Twox128(data []byte) []byte {
	out := make([]byte, 0, 16)
	for seed := uint64(0); seed < 2; seed++ {
		h := xxhash.NewWithSeed(seed)
		_, _ = h.Write(data)
		out = binary.LittleEndian.AppendUint64(out, h.Sum64())
	}
	return out
}

// Twox64Concat hashes data with 64-bit xxhash and appends the data itself.
func Twox64Concat(data []byte) []byte {
	out := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(data)), xxhash.Sum64(data))
	return append(out, data...)
}

// StoragePrefix returns twox128(pallet) ++ twox128(item).
func StoragePrefix(pallet, item string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
}

// CountStorageKey is the key of the domain counter.
func CountStorageKey() []byte {
	return StoragePrefix(PalletPrefix, CountItem)
}

// DomainsPrefix is the key prefix shared by every entry of the Domains map.
func DomainsPrefix() []byte {
	return StoragePrefix(PalletPrefix, DomainsItem)
}

// DomainStorageKey is the full key of one Domains entry.
func DomainStorageKey(id DomainID) []byte {
	return append(DomainsPrefix(), Twox64Concat(id[:])...)
}

// DomainIDFromStorageKey extracts the id carried in the key's trailing bytes.
func DomainIDFromStorageKey(key []byte) (DomainID, error) {
	if len(key) != 32+8+32 {
		return DomainID{}, fmt.Errorf("domain storage key has %d bytes", len(key))
	}
	var id DomainID
	copy(id[:], key[len(key)-32:])
	return id, nil
}

// DecodeCount decodes the counter value; an absent value reads as zero.
func DecodeCount(value []byte) (uint32, error) {
	if len(value) == 0 {
		return 0, nil
	}
	return scale.NewDecoder(value).U32()
}

// EncodeCount encodes the counter value.
func EncodeCount(n uint32) []byte {
	e := scale.NewEncoder()
	e.PutU32(n)
	return e.Bytes()
}
