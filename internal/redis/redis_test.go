package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"voiceassist/internal/config"
)

func TestJSONRoundTripAndPrefixDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	type row struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	want := []row{{ID: "1", Name: "Ana"}}
	if err := client.SetJSON(ctx, "dashboard:test:1", want, time.Minute); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var got []row
	if err := client.GetJSON(ctx, "dashboard:test:1", &got); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("unexpected value %+v", got)
	}
	ttl, err := client.TTL(ctx, "dashboard:test:1")
	if err != nil || ttl <= 0 {
		t.Fatalf("expected positive ttl, got %v (%v)", ttl, err)
	}

	if err := client.DelPrefix(ctx, "dashboard:"); err != nil {
		t.Fatalf("del prefix: %v", err)
	}
	if err := client.GetJSON(ctx, "dashboard:test:1", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestNilClientReportsNotInitialized(t *testing.T) {
	var c *Client
	if err := c.SetJSON(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	client, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port, DB: db}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
