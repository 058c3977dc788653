package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/respcache/respcache/internal/testutil"
	"github.com/respcache/respcache/pkg/cache"
	"github.com/respcache/respcache/pkg/store"
)

// setupRedis starts a Redis container and returns its connection string.
func setupRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return "redis://" + host + ":" + port.Port()
}

// waitForKey polls the store until the fire-and-forget write-back lands.
func waitForKey(t *testing.T, s store.Store, key string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.Get(context.Background(), key); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Key %q never appeared in the store", key)
}

// TestRedisBackedMiddleware covers the full flow against a real Redis:
// miss -> write-back -> hit -> TTL expiry -> pattern invalidation.
func TestRedisBackedMiddleware(t *testing.T) {
	url := setupRedis(t)

	manager := cache.New(cache.Options{
		RedisEnabled:         true,
		RedisURL:             url,
		MaxReconnectAttempts: 5,
	})
	defer manager.Close()

	if _, ok := manager.Store().(*store.Redis); !ok {
		t.Fatalf("Expected Redis backend, got %T", manager.Store())
	}

	downstream := testutil.NewJSONHandler(`{"orders":[1,2]}`)
	cfg := cache.Config{Duration: 2 * time.Second}
	handler := manager.Middleware(cfg)(downstream)

	// Request 1: miss, downstream runs, response written back asynchronously.
	t.Log("Request 1: cache miss")
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, httptest.NewRequest("GET", "/api/orders", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("Request 1 status = %d", w1.Code)
	}
	if downstream.Calls() != 1 {
		t.Fatalf("Downstream calls = %d, want 1", downstream.Calls())
	}

	key := cache.DeriveKey(httptest.NewRequest("GET", "/api/orders", nil), cfg)
	waitForKey(t, manager.Store(), key)

	// Request 2: hit served from Redis, downstream does not run.
	t.Log("Request 2: cache hit")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, httptest.NewRequest("GET", "/api/orders", nil))

	body2, _ := io.ReadAll(w2.Result().Body)
	if string(body2) != `{"orders":[1,2]}` {
		t.Errorf("Cached body = %s", body2)
	}
	if w2.Header().Get("X-Cache") != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", w2.Header().Get("X-Cache"))
	}
	if downstream.Calls() != 1 {
		t.Errorf("Downstream calls = %d, want 1 after hit", downstream.Calls())
	}

	// TTL expiry: Redis expires the key natively.
	t.Log("Waiting for TTL expiry")
	time.Sleep(2500 * time.Millisecond)

	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, httptest.NewRequest("GET", "/api/orders", nil))
	if downstream.Calls() != 2 {
		t.Errorf("Downstream calls = %d, want 2 after expiry", downstream.Calls())
	}
}

func TestRedisBackedInvalidation(t *testing.T) {
	url := setupRedis(t)

	manager := cache.New(cache.Options{
		RedisEnabled: true,
		RedisURL:     url,
	})
	defer manager.Close()

	ctx := context.Background()
	seeded := []string{
		"GET|/a|{}|{}|{}",
		"GET|/b|{}|{}|{}",
		"POST|/a|{}|{}|{}",
	}
	for _, key := range seeded {
		if err := manager.Store().Set(ctx, key, []byte(`1`), time.Minute); err != nil {
			t.Fatalf("Seed Set(%s) failed: %v", key, err)
		}
	}

	if err := manager.ClearCache(ctx, `^GET\|/a`); err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}

	if _, err := manager.Store().Get(ctx, seeded[0]); err != store.ErrCacheMiss {
		t.Errorf("Matching key should be gone, got %v", err)
	}
	for _, key := range seeded[1:] {
		if _, err := manager.Store().Get(ctx, key); err != nil {
			t.Errorf("Non-matching key %q should survive, got %v", key, err)
		}
	}

	if err := manager.ClearCache(ctx, ""); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	keys, _ := manager.Store().Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("Keys after flush = %v, want none", keys)
	}
}

// TestRedisOutageIsInvisible stops the container mid-test: requests must
// keep succeeding by falling through to the downstream handler.
func TestRedisOutageIsInvisible(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "6379")

	manager := cache.New(cache.Options{
		RedisEnabled:         true,
		RedisURL:             "redis://" + host + ":" + port.Port(),
		MaxReconnectAttempts: 2,
	})
	defer manager.Close()

	downstream := testutil.NewJSONHandler(`{"ok":true}`)
	handler := manager.Middleware(cache.Config{Duration: time.Minute})(downstream)

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, httptest.NewRequest("GET", "/api/ok", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("Request before outage status = %d", w1.Code)
	}

	if err := container.Stop(ctx, nil); err != nil {
		t.Fatalf("Failed to stop container: %v", err)
	}

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/ok", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Request %d during outage status = %d, want 200", i, w.Code)
		}
		body, _ := io.ReadAll(w.Result().Body)
		if string(body) != `{"ok":true}` {
			t.Errorf("Request %d during outage body = %s", i, body)
		}
	}
}
