package members

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/relayops/relaybot/internal/cache"
)

// memberRecorder records AddMember calls and stubs the rest of the store.
type memberRecorder struct {
	cache.Store
	added []string
}

func (r *memberRecorder) AddMember(ctx context.Context, member string) error {
	r.added = append(r.added, member)
	return nil
}

func TestSeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"members":{"turboflakes":{"name":"TurboFlakes"},"gatotech":{"name":"Gatotech"}}}`))
	}))
	defer ts.Close()

	rec := &memberRecorder{}
	if err := NewSeeder(ts.URL, rec).Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	sort.Strings(rec.added)
	if len(rec.added) != 2 || rec.added[0] != "gatotech" || rec.added[1] != "turboflakes" {
		t.Errorf("added = %v", rec.added)
	}
}

func TestSeedBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	if err := NewSeeder(ts.URL, &memberRecorder{}).Seed(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestSeedBadPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	if err := NewSeeder(ts.URL, &memberRecorder{}).Seed(context.Background()); err == nil {
		t.Fatal("expected error for undecodable payload")
	}
}
