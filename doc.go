// Package registrar is the composition root of a client for an on-chain domain name
// registry.
//
// It connects the core logic (count subscriber, record fetcher, action dispatcher) with
// the node adapters: a JSON-RPC websocket client for a real node, and an in-process
// development chain that reproduces the registry pallet.
//
// Features:
//
//   - **Live registry view**: the domain counter drives re-enumeration of the record map,
//     and every snapshot is published to watchers.
//   - **Transaction tracking**: actions are submitted and followed through
//     Signing, Broadcast, InBlock and Finalized, or Failed.
//   - **Dev chain**: `memnode` implements the registry rules in memory, with optional
//     block time and a YAML state file, and `rpc.Server` exposes it over websocket.
//
// Usage:
//
//	client, err := registrar.New(ctx, "ws://127.0.0.1:9944",
//		registrar.WithAccount(core.DevAccounts["alice"]),
//		registrar.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	_ = client.Service.Start(ctx)
//	tracker := client.Dispatch(ctx, core.CreateDomainAction("gopher"), core.DispatchOptions{})
//	err = tracker.Wait(ctx)
package registrar
