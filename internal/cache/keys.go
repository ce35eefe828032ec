package cache

import (
	"fmt"

	"github.com/relayops/relaybot/internal/alert"
)

// All persisted state lives under a single namespace. Every key is fully
// determined by the tuple of entity identifiers, so categories can never
// collide.
const keyPrefix = "relaybot"

// StatsCategory names one of the per-day alert counters.
type StatsCategory string

const (
	StatsByCode     StatsCategory = "bycode"
	StatsBySeverity StatsCategory = "byseverity"
	StatsByService  StatsCategory = "byservice"
)

// membersKey is the set of known member IDs.
func membersKey() string {
	return fmt.Sprintf("%s:members", keyPrefix)
}

// subscribersKey is the set of subscribers for (member, severity).
func subscribersKey(member string, severity alert.Severity) string {
	return fmt.Sprintf("%s:subscribers:%s:%s", keyPrefix, member, severity)
}

// subscriberConfigKey is the hash holding per-subscription settings,
// currently just the mute window.
func subscriberConfigKey(who, member string, severity alert.Severity) string {
	return fmt.Sprintf("%s:subscriber:%s:%s:%s:config", keyPrefix, who, member, severity)
}

// lastAlertsKey is the hash of dedup fields to last-delivery timestamps for
// (subscriber, member).
func lastAlertsKey(who, member string) string {
	return fmt.Sprintf("%s:alerts:%s:%s", keyPrefix, who, member)
}

// maintenanceKey is the hash holding the member's maintenance flag.
func maintenanceKey(member string) string {
	return fmt.Sprintf("%s:maintenance:%s", keyPrefix, member)
}

// statsKey is the daily counter hash for a category and member. day is a
// UTC yymmdd bucket.
func statsKey(category StatsCategory, day, member string) string {
	return fmt.Sprintf("%s:stats:%s:%s:%s", keyPrefix, category, day, member)
}
