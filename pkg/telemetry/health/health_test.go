package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(c *Checker)
		wantStatus string
	}{
		{
			name:       "no checks",
			setup:      func(*Checker) {},
			wantStatus: StatusReady,
		},
		{
			name: "all healthy",
			setup: func(c *Checker) {
				c.RegisterCheck("repository", func(context.Context) error { return nil })
				c.RegisterOptionalCheck("cache", func(context.Context) error { return nil })
			},
			wantStatus: StatusReady,
		},
		{
			name: "optional failing",
			setup: func(c *Checker) {
				c.RegisterCheck("repository", func(context.Context) error { return nil })
				c.RegisterOptionalCheck("cache", func(context.Context) error { return errors.New("down") })
			},
			wantStatus: StatusDegraded,
		},
		{
			name: "critical failing",
			setup: func(c *Checker) {
				c.RegisterCheck("repository", func(context.Context) error { return errors.New("unavailable") })
				c.RegisterOptionalCheck("cache", func(context.Context) error { return errors.New("down") })
			},
			wantStatus: StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			tt.setup(c)
			if got := c.CheckReadiness(context.Background()).Status; got != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	status := c.CheckReadiness(context.Background())
	res := status.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v, want unhealthy timeout", res)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := New(time.Second)
	c.RegisterOptionalCheck("cache", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded status code = %d, want 200", rec.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != StatusDegraded {
		t.Errorf("body status = %q, want degraded", body.Status)
	}

	c.RegisterCheck("repository", func(context.Context) error { return errors.New("unavailable") })
	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status code = %d, want 503", rec.Code)
	}
}

func TestLivenessHandler_MethodNotAllowed(t *testing.T) {
	c := New(0)
	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-01-01")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("VersionInfo = %+v", info)
	}
}
