package idempotency

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewGuard(nil, client)
}

func TestBeginProcessingSingleWinner(t *testing.T) {
	guard := newTestGuard(t)
	summaries := []string{"text|oi", "image|https://cdn.example/a.jpg"}

	const callers = 8
	var wg sync.WaitGroup
	proceeded := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !guard.BeginProcessing(context.Background(), "conv-1", summaries) {
				proceeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(proceeded)

	count := 0
	for range proceeded {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one caller should proceed, got %d", count)
	}
}

func TestBeginProcessingDistinctBatchesProceed(t *testing.T) {
	guard := newTestGuard(t)
	if guard.BeginProcessing(context.Background(), "conv-1", []string{"text|oi"}) {
		t.Fatal("first batch should proceed")
	}
	if guard.BeginProcessing(context.Background(), "conv-1", []string{"text|tchau"}) {
		t.Fatal("different batch content should proceed")
	}
	if guard.BeginProcessing(context.Background(), "conv-2", []string{"text|oi"}) {
		t.Fatal("different conversation should proceed")
	}
}

func TestBeginProcessingWithoutCacheProceeds(t *testing.T) {
	guard := NewGuard(nil, nil)
	for i := 0; i < 3; i++ {
		if guard.BeginProcessing(context.Background(), "conv-1", []string{"text|oi"}) {
			t.Fatal("guard without cache must always proceed")
		}
	}
}

func TestDigestOrderSensitive(t *testing.T) {
	a := Digest("c", []string{"text|a", "text|b"})
	b := Digest("c", []string{"text|b", "text|a"})
	if a == b {
		t.Fatal("digest must preserve message order")
	}
	if a != Digest("c", []string{"text|a", "text|b"}) {
		t.Fatal("digest must be deterministic")
	}
}
