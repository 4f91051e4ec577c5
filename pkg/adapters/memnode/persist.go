package memnode

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/registrar/pkg/core"
)

// TempFilePrefix is the prefix used for temporary atomic write files.
const TempFilePrefix = "registrar-tmp-"

// stateFile is the YAML document persisted after every block.
type stateFile struct {
	Version  int               `yaml:"version"`
	Block    uint64            `yaml:"block"`
	Head     string            `yaml:"head"`
	Count    uint32            `yaml:"count"`
	Domains  []domainEntry     `yaml:"domains"`
	Balances map[string]string `yaml:"balances"`
}

type domainEntry struct {
	Name      string    `yaml:"name"`
	Owner     string    `yaml:"owner"`
	Price     string    `yaml:"price,omitempty"`
	Wallet    string    `yaml:"wallet,omitempty"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

type restored struct {
	state  *chainState
	number uint64
	head   core.Hash
}

// persistableLocked captures the committed state for saving outside the lock.
func (n *Node) persistableLocked() *stateFile {
	if n.config.StateFile == "" {
		return nil
	}
	out := &stateFile{
		Version:  1,
		Block:    n.number,
		Head:     n.head.String(),
		Count:    n.state.count,
		Domains:  make([]domainEntry, 0, len(n.state.order)),
		Balances: make(map[string]string, len(n.state.balances)),
	}
	for _, id := range n.state.order {
		d := n.state.domains[id]
		if d == nil {
			continue
		}
		e := domainEntry{Name: d.Name, Owner: d.Owner.String(), Wallet: d.Wallet, CreatedAt: d.CreatedAt}
		if d.Price != nil {
			e.Price = d.Price.String()
		}
		out.Domains = append(out.Domains, e)
	}
	for a, b := range n.state.balances {
		out.Balances[a.String()] = b.String()
	}
	return out
}

func saveState(filename string, s *stateFile) error {
	if s == nil {
		return nil
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return writeFileAtomic(filename, data, 0644)
}

// loadState reads a state file. A missing file yields nil, nil.
func loadState(filename string) (*restored, error) {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var f stateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", filename, err)
	}

	st := newChainState()
	st.count = f.Count
	for _, e := range f.Domains {
		owner, err := core.ParseAccountID(e.Owner)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", e.Name, err)
		}
		d := &core.Domain{Name: e.Name, Owner: owner, Wallet: e.Wallet, CreatedAt: e.CreatedAt}
		if e.Price != "" {
			p, ok := new(big.Int).SetString(e.Price, 10)
			if !ok {
				return nil, fmt.Errorf("domain %s: invalid price %q", e.Name, e.Price)
			}
			d.Price = p
		}
		id := core.DomainIDFor(e.Name)
		st.order = append(st.order, id)
		st.domains[id] = d
		st.owned[owner] = append(st.owned[owner], id)
	}
	for addr, raw := range f.Balances {
		a, err := core.ParseAccountID(addr)
		if err != nil {
			return nil, fmt.Errorf("balance: %w", err)
		}
		b, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("balance of %s: invalid amount %q", addr, raw)
		}
		st.balances[a] = b
	}

	out := &restored{state: st, number: f.Block}
	if f.Head != "" {
		h, err := core.ParseHash(f.Head)
		if err != nil {
			return nil, err
		}
		out.head = h
	}
	return out, nil
}

// writeFileAtomic writes data to a file atomically by writing to a temp file
// and then renaming it to the target filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
