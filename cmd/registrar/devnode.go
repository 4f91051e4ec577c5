package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/registrar"
	"github.com/aretw0/registrar/internal/metrics"
	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/adapters/rpc"
)

var (
	devListen    string
	devBlockTime time.Duration
	devStateFile string
	devUnsafe    bool
)

var devnodeCmd = &cobra.Command{
	Use:   "devnode",
	Short: "Run an in-process development chain with the registry runtime",
	Long: `devnode serves JSON-RPC over websocket on /, Prometheus metrics on /metrics
and the node's internal state on /state.

Under go run or go test the state file is moved to the temp directory unless --unsafe is set.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("listen") {
			cfg.DevNode.Listen = devListen
		}
		if cmd.Flags().Changed("block-time") {
			cfg.DevNode.BlockTime = devBlockTime
		}
		if cmd.Flags().Changed("state-file") {
			cfg.DevNode.StateFile = devStateFile
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runDevNode(ctx, cfg); err != nil {
			fatal("Dev node failed", err)
		}
	},
}

func devChainConfig(cfg registrar.Config) memnode.Config {
	stateFile := registrar.ResolveStatePath(cfg.DevNode.StateFile, registrar.IsDevRun() && !devUnsafe)
	return memnode.Config{
		BlockTime:      cfg.DevNode.BlockTime,
		MaxDomainOwned: cfg.DevNode.MaxDomainOwned,
		StateFile:      stateFile,
		Logger:         slog.Default(),
	}
}

func runDevNode(ctx context.Context, cfg registrar.Config) error {
	m := metrics.New()

	chainCfg := devChainConfig(cfg)
	chainCfg.OnBlock = func(b memnode.Block) {
		m.ObserveBlock(b)
		if b.Extrinsics > 0 {
			slog.Info("block sealed", "number", b.Number, "hash", b.Hash, "extrinsics", b.Extrinsics, "failed", b.Failed)
		}
	}
	chain, err := memnode.New(chainCfg)
	if err != nil {
		return err
	}
	defer chain.Close()

	mux := http.NewServeMux()
	mux.Handle("/", rpc.NewServer(chain,
		rpc.WithServerLogger(slog.Default()),
		rpc.WithSubscriptionHook(m.SubscriptionDelta),
	))
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chain.State())
	})
	srv := &http.Server{Addr: cfg.DevNode.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chain.Start(ctx)
	})
	g.Go(func() error {
		slog.Info("dev node listening", "addr", cfg.DevNode.Listen, "block_time", cfg.DevNode.BlockTime, "state_file", chainCfg.StateFile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(devnodeCmd)
	devnodeCmd.Flags().StringVar(&devListen, "listen", "127.0.0.1:9944", "Address to serve on")
	devnodeCmd.Flags().DurationVar(&devBlockTime, "block-time", 6*time.Second, "Block interval; 0 seals on every submission")
	devnodeCmd.Flags().StringVar(&devStateFile, "state-file", "", "YAML file the chain state is kept in")
	devnodeCmd.Flags().BoolVar(&devUnsafe, "unsafe", false, "Use --state-file as given even under go run")
}
