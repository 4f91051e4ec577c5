package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/registrar"
	"github.com/aretw0/registrar/pkg/core"
)

var (
	verbose    bool
	endpoint   string
	account    string
	adapter    string
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "registrar",
	Short: "Client for the on-chain domain name registry",
	Long: `registrar lists, watches and trades domains registered on a Substrate chain.
It talks JSON-RPC over websocket to a node, or runs its own development chain.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "Node websocket endpoint (default from config, else "+registrar.DefaultEndpoint+")")
	rootCmd.PersistentFlags().StringVarP(&account, "account", "a", "", "Local account: dev name, SS58 address or 0x public key")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "", "Node adapter: rpc or memory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: registrar.yaml found upwards from the working directory)")
}

// resolveConfigPath returns --config, or the nearest registrar.yaml, or "".
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	path, err := registrar.FindConfig(cwd)
	if err != nil {
		return ""
	}
	return path
}

// loadConfig merges file, environment and flags, flags winning.
func loadConfig() registrar.Config {
	cfg, err := registrar.LoadConfig(resolveConfigPath())
	if err != nil {
		fatal("Failed to load config", err)
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if account != "" {
		cfg.Account = account
	}
	if adapter != "" {
		cfg.Adapter = adapter
	}
	return cfg
}

// connect opens a client from the merged configuration.
func connect(ctx context.Context, extra ...registrar.Option) (*registrar.Client, registrar.Config) {
	cfg := loadConfig()
	opts, err := cfg.Options()
	if err != nil {
		fatal("Invalid account", err)
	}
	opts = append(opts, registrar.WithLogger(slog.Default()))
	if cfg.Adapter == registrar.AdapterMemory {
		opts = append(opts, registrar.WithMemoryConfig(devChainConfig(cfg)))
	}
	opts = append(opts, extra...)

	client, err := registrar.New(ctx, cfg.Endpoint, opts...)
	if err != nil {
		fatal("Failed to connect to "+cfg.Endpoint, err)
	}
	return client, cfg
}

// resolveDomain accepts a 0x domain id or a domain name.
func resolveDomain(arg string) (core.DomainID, error) {
	if len(arg) > 2 && arg[:2] == "0x" {
		return core.ParseDomainID(arg)
	}
	name := core.DomainName(arg)
	if name == "" {
		return core.DomainID{}, fmt.Errorf("empty domain name")
	}
	return core.DomainIDFor(name), nil
}
