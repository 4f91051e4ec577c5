package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("account: alice\n"), 0644))

	loaded := make(chan Config, 4)
	w := NewConfigWatcher(path, func(c Config) { loaded <- c }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop(context.Background()) }()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("account: bob\n"), 0644))

	select {
	case cfg := <-loaded:
		assert.Equal(t, "bob", cfg.Account)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}

	assert.Error(t, w.Start(ctx), "second start must fail")
}
