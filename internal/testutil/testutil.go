// Package testutil provides testing utilities for the response cache.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/respcache/respcache/pkg/store"
)

// JSONHandler is a downstream handler that emits a JSON payload and counts
// its invocations, so tests can assert whether the cache short-circuited.
type JSONHandler struct {
	mu      sync.Mutex
	calls   int
	Status  int
	Payload string
}

// NewJSONHandler creates a handler replying 200 with the given JSON body.
func NewJSONHandler(payload string) *JSONHandler {
	return &JSONHandler{Status: http.StatusOK, Payload: payload}
}

// ServeHTTP implements http.Handler.
func (h *JSONHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.Status)
	fmt.Fprint(w, h.Payload)
}

// Calls returns how many times the downstream handler ran.
func (h *JSONHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// FailingStore wraps an in-process store with injectable operation errors
// for fail-open tests. A nil error field delegates to the inner store.
type FailingStore struct {
	Inner   store.Store
	GetErr  error
	SetErr  error
	KeysErr error

	mu   sync.Mutex
	gets int
	sets int
}

// NewFailingStore creates a FailingStore around an unbounded memory store.
func NewFailingStore() *FailingStore {
	return &FailingStore{
		Inner: store.NewMemory(store.MemoryConfig{}),
	}
}

// Get implements store.Store.
func (f *FailingStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return f.Inner.Get(ctx, key)
}

// Set implements store.Store.
func (f *FailingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	f.sets++
	f.mu.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}
	return f.Inner.Set(ctx, key, value, ttl)
}

// Delete implements store.Store.
func (f *FailingStore) Delete(ctx context.Context, key string) error {
	return f.Inner.Delete(ctx, key)
}

// Keys implements store.Store.
func (f *FailingStore) Keys(ctx context.Context) ([]string, error) {
	if f.KeysErr != nil {
		return nil, f.KeysErr
	}
	return f.Inner.Keys(ctx)
}

// Clear implements store.Store.
func (f *FailingStore) Clear(ctx context.Context) error {
	return f.Inner.Clear(ctx)
}

// Close implements store.Store.
func (f *FailingStore) Close() error {
	return f.Inner.Close()
}

// Gets returns the number of Get calls observed.
func (f *FailingStore) Gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// Sets returns the number of Set calls observed.
func (f *FailingStore) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}
