package platform

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/core"
)

// ConfigFileName is the file FindConfig looks for.
const ConfigFileName = "registrar.yaml"

// DefaultEndpoint is the local node's websocket address.
const DefaultEndpoint = "ws://127.0.0.1:9944"

// Config is the on-disk configuration. Every field can be overridden from the
// environment with a REGISTRAR_ prefix (REGISTRAR_ENDPOINT, REGISTRAR_ACCOUNT, ...).
type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	Adapter     string        `yaml:"adapter"`
	Account     string        `yaml:"account"`
	EventBuffer int           `yaml:"event_buffer"`
	DevNode     DevNodeConfig `yaml:"devnode"`
}

// DevNodeConfig configures `registrar devnode`.
type DevNodeConfig struct {
	Listen         string        `yaml:"listen"`
	BlockTime      time.Duration `yaml:"block_time"`
	StateFile      string        `yaml:"state_file"`
	MaxDomainOwned int           `yaml:"max_domain_owned"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Adapter:  AdapterRPC,
		DevNode: DevNodeConfig{
			Listen:         "127.0.0.1:9944",
			BlockTime:      6 * time.Second,
			MaxDomainOwned: memnode.DefaultMaxDomainOwned,
		},
	}
}

// LoadConfig reads path over the defaults and applies environment overrides.
// An empty path, or a path that does not exist, yields defaults plus environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("REGISTRAR_ENDPOINT"); ok {
		c.Endpoint = v
	}
	if v, ok := lookup("REGISTRAR_ADAPTER"); ok {
		c.Adapter = v
	}
	if v, ok := lookup("REGISTRAR_ACCOUNT"); ok {
		c.Account = v
	}
	if v, ok := lookup("REGISTRAR_EVENT_BUFFER"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REGISTRAR_EVENT_BUFFER: %w", err)
		}
		c.EventBuffer = n
	}
	if v, ok := lookup("REGISTRAR_DEVNODE_LISTEN"); ok {
		c.DevNode.Listen = v
	}
	if v, ok := lookup("REGISTRAR_DEVNODE_BLOCK_TIME"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REGISTRAR_DEVNODE_BLOCK_TIME: %w", err)
		}
		c.DevNode.BlockTime = d
	}
	if v, ok := lookup("REGISTRAR_DEVNODE_STATE_FILE"); ok {
		c.DevNode.StateFile = v
	}
	return nil
}

// AccountID resolves the configured account. The zero account means none is selected.
func (c Config) AccountID() (core.AccountID, error) {
	if c.Account == "" {
		return core.AccountID{}, nil
	}
	return core.ParseAccountID(c.Account)
}

// Options converts the configuration into client options.
func (c Config) Options() ([]Option, error) {
	account, err := c.AccountID()
	if err != nil {
		return nil, err
	}
	opts := []Option{WithAccount(account)}
	if c.Adapter != "" {
		opts = append(opts, WithAdapter(c.Adapter))
	}
	if c.EventBuffer > 0 {
		opts = append(opts, WithEventBuffer(c.EventBuffer))
	}
	return opts, nil
}
