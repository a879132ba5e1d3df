package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"resellerhq/warden/internal/panelstest"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/monitor"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/storage"
	"resellerhq/warden/pkg/telemetry/health"
	"resellerhq/warden/pkg/telemetry/metrics"
)

type fixture struct {
	store    *storage.MemoryStore
	client   *panelstest.MockClient
	notifier *panelstest.RecordingNotifier
	ts       *httptest.Server
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		store:    storage.NewMemoryStore(),
		client:   panelstest.NewMockClient(),
		notifier: &panelstest.RecordingNotifier{},
	}
	collector := metrics.NewCollector(nil)
	ctrl := enforcement.NewController(f.store, f.client, f.notifier, enforcement.Config{Metrics: collector})
	sweeper := monitor.NewSweeper(f.store, f.client, f.notifier, ctrl, monitor.SweepConfig{Metrics: collector})
	sched := monitor.NewScheduler(sweeper, monitor.SchedulerConfig{Interval: time.Hour, Metrics: collector})

	checks := health.New(time.Second)
	checks.Register("store", health.PingCheck(f.store))

	srv := New(cfg, Deps{
		Store:    f.store,
		Operator: ctrl,
		Checker:  sweeper,
		Sweeps:   sched,
		Health:   checks,
		Metrics:  collector,
	})
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) addPanel(t *testing.T, username string, maxUsers int64) int64 {
	t.Helper()
	id, err := f.store.CreatePanel(context.Background(), &panels.AdminPanel{
		OwnerID:   7,
		Username:  username,
		Password:  "orig-" + username,
		MaxUsers:  maxUsers,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreatePanel failed: %v", err)
	}
	f.client.SetPassword(username, "orig-"+username)
	return id
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIToken: "s3cret"})

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"no token", "/api/v1/panels", "", http.StatusUnauthorized},
		{"wrong token", "/api/v1/panels", "nope", http.StatusUnauthorized},
		{"right token", "/api/v1/panels", "s3cret", http.StatusOK},
		{"health is open", "/healthz", "", http.StatusOK},
		{"readiness is open", "/readyz", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodGet, tt.path, tt.token, "")
			if resp.StatusCode != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, resp.StatusCode)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, Config{})
	resp, _ := f.do(t, http.MethodGet, "/api/v1/panels", "", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID response header")
	}
}

func TestListAndShowPanel(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.addPanel(t, "alpha", 10)

	resp, body := f.do(t, http.MethodGet, "/api/v1/panels", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	if bytes.Contains(body, []byte("orig-alpha")) {
		t.Error("Expected passwords to be omitted from the listing")
	}
	var list struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(body, &list)
	if list.Count != 1 {
		t.Errorf("Expected 1 panel, got %d", list.Count)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/panels/"+itoa(id), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var view panelView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if view.Panel == nil || view.Panel.Username != "alpha" {
		t.Errorf("Expected panel alpha, got %+v", view.Panel)
	}
	if view.Samples == nil || view.Logs == nil {
		t.Error("Expected empty arrays rather than null")
	}
}

func TestPanelErrors(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"bad id", http.MethodGet, "/api/v1/panels/abc", "", http.StatusBadRequest},
		{"zero id", http.MethodGet, "/api/v1/panels/0", "", http.StatusBadRequest},
		{"missing panel", http.MethodGet, "/api/v1/panels/99", "", http.StatusNotFound},
		{"missing panel check", http.MethodGet, "/api/v1/panels/99/check", "", http.StatusNotFound},
		{"missing panel deactivate", http.MethodPost, "/api/v1/panels/99/deactivate", "", http.StatusNotFound},
		{"unknown preset", http.MethodPost, "/api/v1/panels/1/deactivate", `{"preset":"fraud"}`, http.StatusBadRequest},
		{"empty quotas", http.MethodPatch, "/api/v1/panels/1/quotas", `{}`, http.StatusBadRequest},
		{"negative quota", http.MethodPatch, "/api/v1/panels/1/quotas", `{"max_users":-1}`, http.StatusBadRequest},
		{"unknown field", http.MethodPatch, "/api/v1/panels/1/quotas", `{"max_user":5}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, "", tt.body)
			if resp.StatusCode != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, resp.StatusCode, body)
			}
		})
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.addPanel(t, "beta", 10)
	f.client.SeedUsers("beta", 3, panels.UserActive)

	resp, body := f.do(t, http.MethodPost, "/api/v1/panels/"+itoa(id)+"/deactivate", "", `{"preset":"non_payment"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	if bytes.Contains(body, []byte(f.client.Password("beta"))) {
		t.Error("Expected the rotated password to stay out of the response")
	}

	p, _ := f.store.GetPanel(context.Background(), id)
	if p.Status != panels.StatusDeactivated {
		t.Errorf("Expected deactivated, got %s", p.Status)
	}
	if p.DeactivatedReason != panels.ReasonNonPayment {
		t.Errorf("Expected reason %q, got %q", panels.ReasonNonPayment, p.DeactivatedReason)
	}

	resp, body = f.do(t, http.MethodPost, "/api/v1/panels/"+itoa(id)+"/reactivate", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	p, _ = f.store.GetPanel(context.Background(), id)
	if p.Status != panels.StatusActive {
		t.Errorf("Expected active, got %s", p.Status)
	}
	if got := f.client.Password("beta"); got != "orig-beta" {
		t.Errorf("Expected original password restored, got %q", got)
	}
}

func TestDeactivate_PartialFailureIs207(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.addPanel(t, "gamma", 10)
	f.client.SeedUsers("gamma", 2, panels.UserActive)
	f.client.FailUser("gamma-user1")

	resp, body := f.do(t, http.MethodPost, "/api/v1/panels/"+itoa(id)+"/deactivate", "", `{"reason":"abuse"}`)
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("Expected 207, got %d: %s", resp.StatusCode, body)
	}
	var out actionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.OK || out.Result.Failed != 1 {
		t.Errorf("Expected one failed user, got %+v", out.Result)
	}
}

func TestUpdateQuotas(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.addPanel(t, "delta", 10)

	resp, body := f.do(t, http.MethodPatch, "/api/v1/panels/"+itoa(id)+"/quotas", "", `{"max_users":25,"max_total_time":2592000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	p, _ := f.store.GetPanel(context.Background(), id)
	if p.MaxUsers != 25 || p.MaxTotalTime != 2592000 {
		t.Errorf("Expected quotas updated, got users=%d time=%d", p.MaxUsers, p.MaxTotalTime)
	}

	logs, _ := f.store.RecentLogs(context.Background(), id, 10)
	if len(logs) != 1 || logs[0].Action != panels.ActionQuotaChanged {
		t.Errorf("Expected one quota_changed entry, got %+v", logs)
	}
}

func TestCheckPanel(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.addPanel(t, "eps", 10)
	f.client.SeedUsers("eps", 7, panels.UserActive)

	resp, body := f.do(t, http.MethodGet, "/api/v1/panels/"+itoa(id)+"/check", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var res struct {
		Warning  bool `json:"warning"`
		Exceeded bool `json:"exceeded"`
	}
	_ = json.Unmarshal(body, &res)
	if !res.Warning || res.Exceeded {
		t.Errorf("Expected warning without exceed at 0.7, got %+v", res)
	}

	p, _ := f.store.GetPanel(context.Background(), id)
	if p.Status != panels.StatusActive {
		t.Error("Expected check not to enforce")
	}
}

func TestTriggerSweep(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.addPanel(t, "zeta", 2)
	f.client.SeedUsers("zeta", 2, panels.UserActive)

	resp, body := f.do(t, http.MethodPost, "/api/v1/sweep", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var report monitor.Report
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(report.Panels) != 1 || report.Panels[0].Outcome != monitor.OutcomeExceeded {
		t.Errorf("Expected one exceeded panel, got %+v", report.Panels)
	}

	p, _ := f.store.GetPanel(context.Background(), id)
	if p.Status != panels.StatusDeactivated {
		t.Errorf("Expected deactivated after sweep, got %s", p.Status)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/sweep", "", "")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"last"`)) {
		t.Errorf("Expected status with last report, got %d: %s", resp.StatusCode, body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{panels.ErrPanelNotFound, http.StatusNotFound},
		{panels.ErrLocked, http.StatusConflict},
		{monitor.ErrSweepRunning, http.StatusConflict},
		{&panels.TransientAPIError{Op: "list_users", Err: panels.ErrNetwork}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&panels.PersistenceError{Op: "update", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.code {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.code, got)
		}
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2})

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := f.do(t, http.MethodGet, "/api/v1/panels", "", "")
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("Expected 429 on third request, got %d", last)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{MetricsPath: "/metrics"})
	resp, body := f.do(t, http.MethodGet, "/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("go_goroutines")) && !bytes.Contains(body, []byte("warden_")) {
		t.Errorf("Expected prometheus exposition, got %q", body)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv := New(Config{ShutdownTimeout: time.Second}, Deps{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected Serve to return after cancel")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
