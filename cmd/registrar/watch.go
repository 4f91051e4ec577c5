package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/registrar"
	"github.com/aretw0/registrar/internal/platform"
	lcadapter "github.com/aretw0/registrar/pkg/adapters/lifecycle"
	"github.com/aretw0/registrar/pkg/core"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the registry and print every change",
	Long: `watch keeps the registry in sync and prints a line per snapshot.
When a config file is in use, editing its account switches the local account live.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, _ := connect(ctx)
		defer client.Close()

		if err := client.Service.Start(ctx); err != nil {
			fatal("Failed to start sync", err)
		}
		snapshots, err := client.Service.Watch(ctx)
		if err != nil {
			fatal("Failed to watch registry", err)
		}

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			src := lcadapter.NewSource(snapshots)
			if err := src.Start(ctx); err != nil {
				return err
			}
			for ev := range src.Events() {
				snap, ok := ev.(core.Snapshot)
				if !ok {
					continue
				}
				fmt.Println(snap.String())
				if verbose {
					printViews(snap.Views, snap.Session.Account)
				}
			}
			return nil
		})

		if path := resolveConfigPath(); path != "" && account == "" {
			g.Go(func() error {
				return followAccount(ctx, client, path)
			})
		}

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			fatal("Watch failed", err)
		}
	},
}

// followAccount switches the session whenever the config file names a different account.
func followAccount(ctx context.Context, client *registrar.Client, path string) error {
	w := platform.NewConfigWatcher(path, func(cfg platform.Config) {
		id, err := cfg.AccountID()
		if err != nil {
			slog.Warn("ignoring invalid account in config", "error", err)
			return
		}
		if id == client.Session().Account {
			return
		}
		client.Service.SetAccount(id)
		slog.Info("account switched", "account", id)
	}, slog.Default())
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop(context.Background())
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
