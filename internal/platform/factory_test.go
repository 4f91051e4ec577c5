package platform_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/registrar/internal/platform"
	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/core"
)

func TestNew_MemoryAdapter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		states []core.TxState
	)
	client, err := platform.New(ctx, "",
		platform.WithAdapter(platform.AdapterMemory),
		platform.WithAccount(core.DevAccounts["alice"]),
		platform.WithEventBuffer(4),
		platform.WithStatusObserver(func(s core.TxState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)
	defer func() { assert.NoError(t, client.Close()) }()

	require.NoError(t, client.Service.Start(ctx))
	snapshots, err := client.Service.Watch(ctx)
	require.NoError(t, err)

	tr := client.Dispatch(ctx, core.CreateDomainAction("factory"), core.DispatchOptions{})
	require.NoError(t, tr.Wait(ctx))
	assert.Equal(t, core.StateFinalized, tr.State())

	for {
		select {
		case snap := <-snapshots:
			if len(snap.Views) == 1 {
				assert.Equal(t, core.DomainName("factory"), snap.Views[0].Name)
				mu.Lock()
				assert.Contains(t, states, core.StateFinalized)
				mu.Unlock()
				return
			}
		case <-ctx.Done():
			t.Fatal("timeout waiting for snapshot")
		}
	}
}

func TestNew_InjectedNode(t *testing.T) {
	node, err := memnode.New(memnode.Config{})
	require.NoError(t, err)
	defer func() { _ = node.Close() }()

	client, err := platform.New(context.Background(), "ignored", platform.WithNode(node), platform.WithAdapter("bogus"))
	require.NoError(t, err)
	assert.Same(t, node, client.Node.(*memnode.Node))
	assert.NoError(t, client.Close())
}

func TestNew_Errors(t *testing.T) {
	_, err := platform.New(context.Background(), "", platform.WithAdapter("carrier-pigeon"))
	assert.ErrorContains(t, err, "unknown adapter")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = platform.New(ctx, "ws://127.0.0.1:1", platform.WithAdapter(platform.AdapterRPC))
	assert.Error(t, err)
}
