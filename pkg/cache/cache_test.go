package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/telemetry/logging"
)

func TestKey_String(t *testing.T) {
	a := Key{ContextType: "deal", ContextID: "a|b", ContextHash: "c", UserRole: "r", RuleSetVersion: 3}
	b := Key{ContextType: "deal", ContextID: "a", ContextHash: "b|c", UserRole: "r", RuleSetVersion: 3}

	if a.String() == b.String() {
		t.Errorf("keys with shifted separators encode equal: %q", a.String())
	}
	if !strings.HasSuffix(a.String(), "|3") {
		t.Errorf("String() = %q, want version suffix", a.String())
	}
	if again := (Key{ContextType: "deal", ContextID: "a|b", ContextHash: "c", UserRole: "r", RuleSetVersion: 3}); again.String() != a.String() {
		t.Error("String() not stable")
	}
}

func TestNewKey(t *testing.T) {
	c := &rules.Context{ContextType: "deal", ContextID: "d1", UserRole: "rep", VersionHash: "v9"}
	k := NewKey(c, 4)

	want := Key{ContextType: "deal", ContextID: "d1", ContextHash: "v9", UserRole: "rep", RuleSetVersion: 4}
	if k != want {
		t.Errorf("NewKey() = %+v, want %+v", k, want)
	}

	c2 := &rules.Context{ContextType: "deal", ContextID: "d1", Attributes: map[string]any{"amount": 10}}
	c3 := &rules.Context{ContextType: "deal", ContextID: "d1", Attributes: map[string]any{"amount": 20}}
	if NewKey(c2, 1) == NewKey(c3, 1) {
		t.Error("contexts with different attributes share a key")
	}
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&UnavailableError{Backend: BackendRedis, Operation: "get", Cause: cause})

	if !errors.Is(err, ErrCacheUnavailable) {
		t.Error("errors.Is(err, ErrCacheUnavailable) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	if !strings.Contains(err.Error(), "redis") || !strings.Contains(err.Error(), "get") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.CacheConfig
		backend string
		wantErr bool
	}{
		{name: "nil config", cfg: nil, backend: BackendNop},
		{name: "disabled", cfg: &config.CacheConfig{Enabled: false, Backend: "memory"}, backend: BackendNop},
		{name: "memory", cfg: &config.CacheConfig{Enabled: true, Backend: "memory", MaxEntries: 10}, backend: BackendMemory},
		{name: "redis", cfg: &config.CacheConfig{Enabled: true, Backend: "redis", Redis: config.RedisConfig{Address: "127.0.0.1:1"}}, backend: BackendRedis},
		{name: "unknown", cfg: &config.CacheConfig{Enabled: true, Backend: "memcached"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, logging.Discard())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer c.Close()
			if got := BackendName(c); got != tt.backend {
				t.Errorf("BackendName() = %q, want %q", got, tt.backend)
			}
		})
	}
}

func TestNopCache(t *testing.T) {
	var c Cache = NopCache{}
	ctx := context.Background()

	if err := c.Put(ctx, key("d1", 1), entry("a"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(ctx, key("d1", 1)); ok || err != nil {
		t.Errorf("Get() = %v, %v, want miss", ok, err)
	}
}
