// Package engine orchestrates the two halves of the core: applying parsed
// chat commands to the subscription state, and deciding per-subscriber
// delivery for inbound alerts.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relayops/relaybot/internal/alert"
	"github.com/relayops/relaybot/internal/cache"
	"github.com/relayops/relaybot/internal/command"
	"github.com/relayops/relaybot/internal/config"
	"github.com/relayops/relaybot/internal/report"
)

// Messenger is the slice of the chat transport the engine needs: private
// replies to subscribers.
type Messenger interface {
	SendPrivateMessage(ctx context.Context, userID, message, formatted string) error
}

// Engine mutates subscription state for commands and gates alert delivery.
type Engine struct {
	store           cache.Store
	messenger       Messenger
	defaultMute     int
	allowedServices map[string]bool

	// now is swapped out in tests.
	now func() time.Time
}

// New builds an Engine. An empty allowed_services list disables the
// service whitelist.
func New(store cache.Store, messenger Messenger, cfg *config.Config) *Engine {
	var allowed map[string]bool
	if len(cfg.AllowedServices) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedServices))
		for _, s := range cfg.AllowedServices {
			allowed[s] = true
		}
	}
	return &Engine{
		store:           store,
		messenger:       messenger,
		defaultMute:     cfg.MuteTime,
		allowedServices: allowed,
		now:             time.Now,
	}
}

// HandleCommand applies one parsed chat command. Help is answered by the
// caller (it owns the room the command arrived in); NotSupported is
// deliberately silent.
func (e *Engine) HandleCommand(ctx context.Context, cmd command.Command) error {
	switch cmd.Kind {
	case command.KindSubscribe:
		return e.subscribe(ctx, cmd)
	case command.KindSubscribeAll:
		return e.subscribeAll(ctx, cmd)
	case command.KindUnsubscribe:
		return e.unsubscribe(ctx, cmd)
	case command.KindUnsubscribeAll:
		return e.unsubscribeAll(ctx, cmd)
	case command.KindHelp, command.KindNotSupported:
		return nil
	default:
		return fmt.Errorf("unhandled command kind %q", cmd.Kind)
	}
}

// severitiesFor expands an optional severity into the fan-out set.
func severitiesFor(s alert.Severity) []alert.Severity {
	if s == "" {
		return alert.AllSeverities
	}
	return []alert.Severity{s}
}

// muteFor resolves the mute window: the explicit command value, else the
// configured default.
func (e *Engine) muteFor(cmd command.Command) int {
	if cmd.Mute != nil {
		return *cmd.Mute
	}
	return e.defaultMute
}

// addSubscription writes the subscriber config and set membership for one
// (member, severity) pair.
func (e *Engine) addSubscription(ctx context.Context, who, member string, severity alert.Severity, mute int) error {
	if err := e.store.SetSubscriberMute(ctx, who, member, severity, mute); err != nil {
		return err
	}
	return e.store.AddSubscriber(ctx, member, severity, who)
}

func (e *Engine) subscribe(ctx context.Context, cmd command.Command) error {
	isMember, err := e.store.IsMember(ctx, cmd.Member)
	if err != nil {
		return err
	}
	if !isMember {
		msg := fmt.Sprintf("❓ No Member with ID <b>%s</b> defined", cmd.Member)
		return e.messenger.SendPrivateMessage(ctx, cmd.Sender, msg, msg)
	}

	mute := e.muteFor(cmd)
	for _, severity := range severitiesFor(cmd.Severity) {
		if err := e.addSubscription(ctx, cmd.Sender, cmd.Member, severity, mute); err != nil {
			return err
		}
	}

	msg := fmt.Sprintf("📥 Subscription -> %s", subscriptionScope(cmd.Member, cmd.Severity))
	return e.messenger.SendPrivateMessage(ctx, cmd.Sender, msg, msg)
}

func (e *Engine) subscribeAll(ctx context.Context, cmd command.Command) error {
	members, err := e.store.Members(ctx)
	if err != nil {
		return err
	}

	mute := e.muteFor(cmd)
	for _, member := range members {
		for _, severity := range alert.AllSeverities {
			if err := e.addSubscription(ctx, cmd.Sender, member, severity, mute); err != nil {
				return err
			}
		}
	}

	msg := fmt.Sprintf("📥 Subscription -> %s", subscriptionScope("", ""))
	return e.messenger.SendPrivateMessage(ctx, cmd.Sender, msg, msg)
}

func (e *Engine) unsubscribe(ctx context.Context, cmd command.Command) error {
	scope := subscriptionScope(cmd.Member, cmd.Severity)

	if cmd.Severity != "" {
		isSubscriber, err := e.store.IsSubscriber(ctx, cmd.Member, cmd.Severity, cmd.Sender)
		if err != nil {
			return err
		}
		if !isSubscriber {
			msg := fmt.Sprintf("❌ No Subscription - <i>%s</i>", scope)
			return e.messenger.SendPrivateMessage(ctx, cmd.Sender, msg, msg)
		}
		if err := e.store.RemoveSubscriber(ctx, cmd.Member, cmd.Severity, cmd.Sender); err != nil {
			return err
		}
	} else {
		// No existence check when the severity is omitted: clear all
		// three unconditionally.
		for _, severity := range alert.AllSeverities {
			if err := e.store.RemoveSubscriber(ctx, cmd.Member, severity, cmd.Sender); err != nil {
				return err
			}
		}
	}

	msg := fmt.Sprintf("🗑️ Subscription removed - <i>%s</i>", scope)
	return e.messenger.SendPrivateMessage(ctx, cmd.Sender, msg, msg)
}

func (e *Engine) unsubscribeAll(ctx context.Context, cmd command.Command) error {
	members, err := e.store.Members(ctx)
	if err != nil {
		return err
	}
	for _, member := range members {
		for _, severity := range alert.AllSeverities {
			if err := e.store.RemoveSubscriber(ctx, member, severity, cmd.Sender); err != nil {
				return err
			}
		}
	}

	msg := fmt.Sprintf("🗑️ Subscription removed - <i>%s</i>", subscriptionScope("", ""))
	return e.messenger.SendPrivateMessage(ctx, cmd.Sender, msg, msg)
}

// subscriptionScope renders the human-readable scope a command resolved
// to, used in confirmation replies.
func subscriptionScope(member string, severity alert.Severity) string {
	switch {
	case member == "":
		return "alerts from all members"
	case severity == "":
		return fmt.Sprintf("alerts from %s for all severities", member)
	default:
		return fmt.Sprintf("alerts from %s with %s severity", member, severity)
	}
}

// maintenanceOn is the flag value that suppresses delivery for a member.
const maintenanceOn = "on"

// Status is the per-subscriber outcome of one alert evaluation.
type Status string

const StatusDelivered Status = "delivered"

// Delivery is one (subscriber, status) pair. It marshals as a two-element
// array to match the ingestion response contract.
type Delivery struct {
	Subscriber string
	Status     Status
}

func (d Delivery) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%q,%q]", d.Subscriber, d.Status)), nil
}

// ProcessAlert evaluates one inbound alert against every subscriber of
// (member, severity) and returns the deliveries made. The three daily
// stats counters increment regardless of the delivery outcome, including
// under maintenance mode.
func (e *Engine) ProcessAlert(ctx context.Context, a alert.Alert) ([]Delivery, error) {
	now := e.now().UTC()

	mode, err := e.store.MaintenanceMode(ctx, a.MemberID)
	if err != nil {
		return nil, err
	}

	var deliveries []Delivery
	if mode != maintenanceOn {
		deliveries, err = e.dispatch(ctx, a, now)
		if err != nil {
			return nil, err
		}
	} else {
		log.Printf("engine: maintenance mode active for %s, suppressing delivery", a.MemberID)
	}

	if err := e.incrementStats(ctx, a, now); err != nil {
		return nil, err
	}
	return deliveries, nil
}

// dispatch walks the subscriber set applying the mute/dedup gate and the
// service whitelist, delivering and recording a timestamp for each
// subscriber that passes.
func (e *Engine) dispatch(ctx context.Context, a alert.Alert, now time.Time) ([]Delivery, error) {
	subscribers, err := e.store.Subscribers(ctx, a.MemberID, a.Severity)
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(subscribers))
	dedupKey := a.DedupKey()
	for _, who := range subscribers {
		lastSent, err := e.store.LastAlertTime(ctx, who, a.MemberID, dedupKey)
		if err != nil {
			return nil, err
		}
		mute, err := e.store.SubscriberMute(ctx, who, a.MemberID, a.Severity)
		if err != nil {
			return nil, err
		}

		if now.Unix() <= lastSent+mute*60 {
			continue
		}
		if e.allowedServices != nil && !e.allowedServices[a.ServiceID] {
			continue
		}

		r := report.FromAlert(a)
		if err := e.messenger.SendPrivateMessage(ctx, who, r.Message(), r.FormattedMessage()); err != nil {
			return nil, err
		}

		// Both the composite key and the legacy bare code move together;
		// a failed send above means neither is written.
		codeField := fmt.Sprintf("%d", a.Code)
		if err := e.store.RecordDelivery(ctx, who, a.MemberID, dedupKey, codeField, now.Unix()); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, Delivery{Subscriber: who, Status: StatusDelivered})
	}
	return deliveries, nil
}

// incrementStats bumps the three per-day counters for the alert's member.
func (e *Engine) incrementStats(ctx context.Context, a alert.Alert, now time.Time) error {
	day := now.Format("060102")
	code := fmt.Sprintf("%d", a.Code)

	if err := e.store.IncrStats(ctx, cache.StatsByCode, day, a.MemberID, code); err != nil {
		return err
	}
	if err := e.store.IncrStats(ctx, cache.StatsBySeverity, day, a.MemberID, a.Severity.String()); err != nil {
		return err
	}
	return e.store.IncrStats(ctx, cache.StatsByService, day, a.MemberID, a.ServiceID)
}
