package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/registrar"
	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of domains to register")
	parallel := flag.Int("parallel", 16, "Concurrent dispatches")
	endpoint := flag.String("endpoint", "", "Node websocket endpoint; empty runs an in-process chain")
	blockTime := flag.Duration("block-time", 0, "Block time of the in-process chain")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	opts := []registrar.Option{
		registrar.WithLogger(logger),
		registrar.WithAccount(core.DevAccounts["alice"]),
	}
	if *endpoint == "" {
		opts = append(opts,
			registrar.WithAdapter(registrar.AdapterMemory),
			registrar.WithMemoryConfig(memnode.Config{BlockTime: *blockTime, Logger: logger}),
		)
	}
	client, err := registrar.New(ctx, *endpoint, opts...)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	if err := client.Service.Start(ctx); err != nil {
		panic(err)
	}
	snapshots, err := client.Service.Watch(ctx)
	if err != nil {
		panic(err)
	}
	base := (<-snapshots).Count

	// 1. Dispatch
	prefix := fmt.Sprintf("bench-%d-", time.Now().UnixNano())
	fmt.Printf("Registering %d domains (%d in flight)...\n", *count, *parallel)
	startDispatch := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i := 0; i < *count; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		g.Go(func() error {
			return client.Dispatch(gctx, core.CreateDomainAction(name), core.DispatchOptions{}).Wait(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("Dispatch failed: %v\n", err)
		os.Exit(1)
	}
	dispatchDuration := time.Since(startDispatch)
	fmt.Printf("Finalized in: %v (%.0f tx/s)\n", dispatchDuration, float64(*count)/dispatchDuration.Seconds())

	// 2. Convergence
	startSync := time.Now()
	want := base + uint32(*count)
	for snap := range snapshots {
		if snap.Count >= want && len(snap.Views) >= int(want) {
			break
		}
	}
	fmt.Printf("Registry view converged %v after the last finalization (%d domains)\n", time.Since(startSync), want)
}
