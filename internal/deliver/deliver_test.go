package deliver_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/registrar/internal/deliver"
)

func TestQueue_RunsInOrder(t *testing.T) {
	q := deliver.New(context.Background(), nil)
	defer q.Close()

	var mu sync.Mutex
	var got []int
	finished := make(chan struct{})
	for i := 0; i < 100; i++ {
		q.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(finished)
			}
		})
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for deliveries")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_SlowCallbackDoesNotBlockPost(t *testing.T) {
	q := deliver.New(context.Background(), nil)
	defer q.Close()

	release := make(chan struct{})
	q.Post(func() { <-release })

	posted := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Post(func() {})
		}
		close(posted)
	}()

	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("Post blocked behind a slow callback")
	}
	close(release)
}

func TestQueue_CloseDropsPending(t *testing.T) {
	q := deliver.New(context.Background(), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	q.Post(func() {
		close(started)
		<-release
	})
	<-started

	ran := false
	q.Post(func() { ran = true })
	assert.Equal(t, 1, q.Len())

	q.Close()
	assert.Equal(t, 0, q.Len())
	close(release)

	q.Post(func() { ran = true })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran)
	select {
	case <-q.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestQueue_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := deliver.New(ctx, nil)
	cancel()

	select {
	case <-q.Done():
	case <-time.After(time.Second):
		t.Fatal("queue still open after cancel")
	}
}

func TestQueue_ReportsPanic(t *testing.T) {
	errs := make(chan error, 1)
	q := deliver.New(context.Background(), func(err error) { errs <- err })

	q.Post(func() { panic(errors.New("boom")) })

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("panic not reported")
	}
	<-q.Done()
}
