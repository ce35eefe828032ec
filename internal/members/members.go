// Package members seeds the known-member set from the published members
// registry.
package members

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/relayops/relaybot/internal/cache"
)

// registry is the shape of the published members document. Only the member
// IDs (the map keys) are consumed; the per-member detail payload is opaque.
type registry struct {
	Members map[string]json.RawMessage `json:"members"`
}

// Seeder fetches the members registry and writes each member ID into the
// cache.
type Seeder struct {
	http  *http.Client
	url   string
	store cache.Store
}

func NewSeeder(url string, store cache.Store) *Seeder {
	return &Seeder{
		http:  &http.Client{Timeout: 30 * time.Second},
		url:   url,
		store: store,
	}
}

// Seed performs one fetch-and-store round. Unknown members become known;
// members never disappear from the set.
func (s *Seeder) Seed(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching members registry: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("members registry returned status %d", res.StatusCode)
	}

	var reg registry
	if err := json.NewDecoder(res.Body).Decode(&reg); err != nil {
		return fmt.Errorf("decoding members registry: %w", err)
	}

	for id := range reg.Members {
		if err := s.store.AddMember(ctx, id); err != nil {
			return fmt.Errorf("storing member %s: %w", id, err)
		}
	}
	log.Printf("members: %d members seeded from %s", len(reg.Members), s.url)
	return nil
}
