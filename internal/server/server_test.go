package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relayops/relaybot/internal/alert"
	"github.com/relayops/relaybot/internal/config"
	"github.com/relayops/relaybot/internal/engine"
)

// fakeProcessor returns canned deliveries or a canned error.
type fakeProcessor struct {
	deliveries []engine.Delivery
	err        error
	got        *alert.Alert
}

func (p *fakeProcessor) ProcessAlert(ctx context.Context, a alert.Alert) ([]engine.Delivery, error) {
	p.got = &a
	return p.deliveries, p.err
}

func testServer(p AlertProcessor) *Server {
	return New(config.APIConfig{Host: "127.0.0.1", Port: 0, CORSAllowOrigin: []string{"*"}}, p)
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(&fakeProcessor{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestPostAlert(t *testing.T) {
	proc := &fakeProcessor{
		deliveries: []engine.Delivery{{Subscriber: "@a:x", Status: engine.StatusDelivered}},
	}
	srv := testServer(proc)

	payload := `{"code":1001,"severity":"high","message":"m","memberId":"turboflakes","serviceId":"rpc-1"}`
	req := httptest.NewRequest("POST", "/api/alerts", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if proc.got == nil || proc.got.MemberID != "turboflakes" {
		t.Fatalf("processor received %+v", proc.got)
	}
	want := `{"data":[["@a:x","delivered"]]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestPostAlertNoDeliveries(t *testing.T) {
	srv := testServer(&fakeProcessor{})

	payload := `{"code":1,"severity":"low","memberId":"m","serviceId":"s"}`
	req := httptest.NewRequest("POST", "/api/alerts", strings.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestPostAlertMalformed(t *testing.T) {
	srv := testServer(&fakeProcessor{})

	req := httptest.NewRequest("POST", "/api/alerts", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPostAlertMissingMember(t *testing.T) {
	srv := testServer(&fakeProcessor{})

	req := httptest.NewRequest("POST", "/api/alerts", strings.NewReader(`{"code":1}`))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPostAlertProcessingError(t *testing.T) {
	srv := testServer(&fakeProcessor{err: errors.New("cache down")})

	payload := `{"code":1,"severity":"low","memberId":"m","serviceId":"s"}`
	req := httptest.NewRequest("POST", "/api/alerts", strings.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := testServer(&fakeProcessor{})

	req := httptest.NewRequest("OPTIONS", "/api/alerts", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}
