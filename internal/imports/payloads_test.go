package imports

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestPayloadStore(t *testing.T, ttl time.Duration) (*PayloadStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPayloadStore(client, ttl), mr
}

func TestPayloadStoreRoundTrip(t *testing.T) {
	store, _ := newTestPayloadStore(t, time.Minute)
	ctx := context.Background()

	payload := []byte("barcode,productName\nP-1,Milk\n")
	if err := store.Put(ctx, "run-1", payload); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload corrupted in round trip: %q", got)
	}
}

func TestPayloadStoreExpiry(t *testing.T) {
	store, mr := newTestPayloadStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, "run-1", []byte("data")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "run-1"); !errors.Is(err, ErrPayloadExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestPayloadStoreDelete(t *testing.T) {
	store, _ := newTestPayloadStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, "run-1", []byte("data")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "run-1"); !errors.Is(err, ErrPayloadExpired) {
		t.Fatalf("expected missing payload after delete, got %v", err)
	}
}
