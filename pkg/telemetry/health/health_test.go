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

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{"all ok", map[string]CheckFunc{
			"store":   PingCheck(fakePinger{}),
			"marzban": PingCheck(fakePinger{}),
		}, StatusReady},
		{"one failing", map[string]CheckFunc{
			"store":   PingCheck(fakePinger{}),
			"marzban": PingCheck(fakePinger{err: errors.New("network error")}),
		}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.Register(name, check)
			}

			report := c.Readiness(context.Background())
			if report.Status != tt.want {
				t.Errorf("Expected status %q, got %q", tt.want, report.Status)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(report.Checks))
			}
		})
	}
}

func TestReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	report := c.Readiness(context.Background())
	res := report.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message != ErrCheckTimeout.Error() {
		t.Errorf("Expected timeout result, got %+v", res)
	}
}

func TestNames_Sorted(t *testing.T) {
	c := New(0)
	c.Register("store", PingCheck(fakePinger{}))
	c.Register("marzban", PingCheck(fakePinger{}))
	c.Register("store", PingCheck(fakePinger{}))

	names := c.Names()
	if len(names) != 2 || names[0] != "marzban" || names[1] != "store" {
		t.Errorf("Expected [marzban store], got %v", names)
	}
}

func TestFreshnessCheck(t *testing.T) {
	recent := FreshnessCheck(func() time.Time { return time.Now().Add(-time.Minute) }, time.Hour)
	if err := recent(context.Background()); err != nil {
		t.Errorf("Expected recent sweep to pass, got %v", err)
	}

	stale := FreshnessCheck(func() time.Time { return time.Now().Add(-2 * time.Hour) }, time.Hour)
	if err := stale(context.Background()); err == nil {
		t.Error("Expected stale sweep to fail")
	}

	never := FreshnessCheck(func() time.Time { return time.Time{} }, time.Hour)
	if err := never(context.Background()); err != nil {
		t.Errorf("Expected grace period before first sweep, got %v", err)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.Register("marzban", PingCheck(fakePinger{err: errors.New("down")}))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		code    int
		status  string
	}{
		{"liveness", c.LivenessHandler(), http.MethodGet, http.StatusOK, StatusOK},
		{"readiness degraded", c.ReadinessHandler(), http.MethodGet, http.StatusServiceUnavailable, StatusDegraded},
		{"readiness head", c.ReadinessHandler(), http.MethodHead, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(tt.method, "/", nil))

			if rec.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, rec.Code)
			}
			if tt.status == "" {
				if rec.Body.Len() != 0 {
					t.Errorf("Expected empty body for HEAD, got %q", rec.Body.String())
				}
				return
			}
			var report Report
			if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if report.Status != tt.status {
				t.Errorf("Expected status %q, got %q", tt.status, report.Status)
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc", "2025-03-01")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc" || info.GoVersion == "" {
		t.Errorf("Unexpected version info: %+v", info)
	}
}
