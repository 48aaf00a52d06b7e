package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/post"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: decode %q: %v", path, rr.Body.String(), err)
	}
	return rr.Code, body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ok := New(":0", Sources{Store: pinger{}}, logx.Nop())
	if code, body := get(t, ok, "/healthz"); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthy: %d %v", code, body)
	}

	down := New(":0", Sources{Store: pinger{err: errors.New("refused")}}, logx.Nop())
	if code, body := get(t, down, "/healthz"); code != http.StatusServiceUnavailable || body["status"] != "store_unreachable" {
		t.Fatalf("store down: %d %v", code, body)
	}

	stalled := New(":0", Sources{Loop: func() scheduler.Stats {
		return scheduler.Stats{Interval: 2 * time.Second, LastTick: time.Now().Add(-time.Hour)}
	}}, logx.Nop())
	if code, _ := get(t, stalled, "/healthz"); code != http.StatusServiceUnavailable {
		t.Fatalf("stalled loop reported healthy: %d", code)
	}
}

func TestStatusCounters(t *testing.T) {
	t.Parallel()

	col := NewCollector(2)
	for _, k := range []eventbus.Kind{eventbus.PostPublished, eventbus.PostPublished, eventbus.PostFailed, eventbus.TickDone, eventbus.ReminderSent} {
		col.Observe(eventbus.Event{Kind: k, PostID: "p", At: time.Now()})
	}
	s := New(":0", Sources{Collector: col, Loop: func() scheduler.Stats { return scheduler.Stats{Ticks: 3} }}, logx.Nop())

	code, body := get(t, s, "/status")
	if code != http.StatusOK {
		t.Fatalf("code %d", code)
	}
	counters := body["counters"].(map[string]any)
	if counters["published"].(float64) != 2 || counters["failed"].(float64) != 1 || counters["reminders"].(float64) != 1 {
		t.Fatalf("counters: %v", counters)
	}
	recent := body["recent"].([]any)
	if len(recent) != 2 || recent[0].(map[string]any)["kind"] != string(eventbus.ReminderSent) {
		t.Fatalf("recent: %v", recent)
	}
	if body["scheduler"].(map[string]any)["ticks"].(float64) != 3 {
		t.Fatalf("scheduler: %v", body["scheduler"])
	}
}

func TestDeliveries(t *testing.T) {
	t.Parallel()

	st := storage.NewMemory()
	_ = st.RecordDelivery(context.Background(), post.Delivery{PostID: "p1", At: time.Now(), Outcome: post.OutcomePublished, MessageIDs: []int{7}})
	s := New(":0", Sources{History: st}, logx.Nop())

	code, body := get(t, s, "/posts/p1/deliveries?limit=5")
	if code != http.StatusOK || len(body["deliveries"].([]any)) != 1 {
		t.Fatalf("deliveries: %d %v", code, body)
	}
	if code, _ := get(t, s, "/posts/p1/deliveries?limit=x"); code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", code)
	}
	if code, body := get(t, s, "/posts/none/deliveries"); code != http.StatusOK || len(body["deliveries"].([]any)) != 0 {
		t.Fatalf("empty: %d %v", code, body)
	}
}

func TestCollectorRun(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	col := NewCollector(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = col.Run(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for col.Counters().Skipped == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("collector never observed the event")
		}
		bus.Publish(eventbus.Event{Kind: eventbus.PostSkipped})
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestPprofRequiresTokenOffLoopback(t *testing.T) {
	t.Parallel()

	if err := New("0.0.0.0:0", Sources{}, logx.Nop()).EnablePprof(""); err == nil {
		t.Fatalf("expected refusal without token on a public address")
	}
	if err := New("127.0.0.1:0", Sources{}, logx.Nop()).EnablePprof(""); err != nil {
		t.Fatalf("loopback without token: %v", err)
	}
}

func TestPprofAuth(t *testing.T) {
	t.Parallel()

	s := New("0.0.0.0:0", Sources{}, logx.Nop())
	if err := s.EnablePprof("secret"); err != nil {
		t.Fatalf("EnablePprof: %v", err)
	}
	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no token", "/debug/pprof/cmdline", "", http.StatusUnauthorized},
		{"query token", "/debug/pprof/cmdline?token=secret", "", http.StatusOK},
		{"bearer", "/debug/pprof/cmdline", "Bearer secret", http.StatusOK},
		{"wrong bearer", "/debug/pprof/cmdline", "Bearer nope", http.StatusUnauthorized},
		{"named profile", "/debug/pprof/goroutine?debug=1&token=secret", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			s.Router().ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("%s: code=%d want %d", tc.path, rr.Code, tc.want)
			}
		})
	}

	rr := httptest.NewRecorder()
	New("127.0.0.1:0", Sources{}, logx.Nop()).Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("pprof should be off by default, got %d", rr.Code)
	}
}
