package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/metrics"
)

// Recorder marks persisted opportunities as notified. Satisfied by the
// store; nil disables the write-back.
type Recorder interface {
	MarkNotified(ctx context.Context, id uuid.UUID) error
}

// Gate decides which opportunities become webhook messages. It never
// returns errors to callers: delivery problems are logged and dropped.
type Gate struct {
	policy   *PolicyStore
	webhook  *Webhook
	recorder Recorder
	tz       *time.Location
	now      func() time.Time

	mu        sync.Mutex
	lastEmit  map[string]time.Time // route -> last successful emit
	emitTimes []time.Time          // trailing successful emits for the hourly cap
	inFlight  map[string]bool      // routes with a send underway
}

// NewGate wires the gate. tz is the local zone for quiet hours; nil means
// JST.
func NewGate(policy *PolicyStore, webhook *Webhook, tz *time.Location) *Gate {
	if tz == nil {
		tz = time.FixedZone("JST", 9*60*60)
	}
	return &Gate{
		policy:   policy,
		webhook:  webhook,
		tz:       tz,
		now:      time.Now,
		lastEmit: make(map[string]time.Time),
		inFlight: make(map[string]bool),
	}
}

// WithRecorder sets the store write-back used to flip delivered
// opportunities to notified status.
func (g *Gate) WithRecorder(r Recorder) *Gate {
	g.recorder = r
	return g
}

// Offer runs the decision procedure for each opportunity in order. It is
// the detection engine's sink.
func (g *Gate) Offer(ctx context.Context, opportunities []domain.Opportunity) {
	for _, opp := range opportunities {
		g.offerOne(ctx, opp)
	}
}

func (g *Gate) offerOne(ctx context.Context, opp domain.Opportunity) {
	policy := g.policy.Read()
	now := g.now()

	if !policy.ArbitrageAlerts.Enabled || !policy.Discord.Enabled {
		g.drop("disabled")
		return
	}
	if policy.Discord.QuietHours.InQuietHours(now.In(g.tz)) {
		g.drop("quiet_hours")
		return
	}
	if opp.ProfitPct.LessThan(policy.ArbitrageAlerts.MinProfitThreshold) ||
		opp.PriceDiffPct.LessThan(policy.ArbitrageAlerts.MinProfitThreshold) {
		g.drop("below_threshold")
		return
	}
	if opp.ProfitAmount().LessThan(policy.ArbitrageAlerts.MinProfitAmount) {
		g.drop("below_amount")
		return
	}

	route := opp.Route()
	cooldown := time.Duration(policy.ArbitrageAlerts.CooldownMinutes) * time.Minute

	g.mu.Lock()
	if last, ok := g.lastEmit[route]; ok && now.Sub(last) < cooldown {
		g.mu.Unlock()
		g.drop("cooldown")
		return
	}
	if g.recentEmitsLocked(now) >= policy.ArbitrageAlerts.MaxNotificationsPerHour {
		g.mu.Unlock()
		g.drop("hourly_cap")
		return
	}
	// A send already underway for this route counts as its cooldown, so
	// concurrent offers cannot double-emit.
	if g.inFlight[route] {
		g.mu.Unlock()
		g.drop("cooldown")
		return
	}
	g.inFlight[route] = true
	g.mu.Unlock()

	if err := g.webhook.send(ctx, opportunityPayload(opp, policy.Discord.UseEmbeds)); err != nil {
		// Not recorded, so the cooldown never suppresses a retry of an
		// alert that was never delivered.
		log.Warn().Err(err).Str("route", route).Msg("notification delivery failed")
		g.mu.Lock()
		delete(g.inFlight, route)
		g.mu.Unlock()
		g.drop("delivery_failed")
		return
	}

	g.mu.Lock()
	g.lastEmit[route] = now
	g.emitTimes = append(g.emitTimes, now)
	delete(g.inFlight, route)
	g.mu.Unlock()

	if g.recorder != nil {
		if err := g.recorder.MarkNotified(ctx, opp.ID); err != nil {
			log.Warn().Err(err).Str("route", route).Msg("notified status not recorded")
		}
	}

	metrics.NotificationsSent.WithLabelValues(string(opp.Kind)).Inc()
	log.Info().Str("route", route).Str("profit_pct", opp.ProfitPct.String()).
		Msg("opportunity notified")
}

// SystemAlert delivers an operational message. Severity threshold and
// rate limits do not apply, but channel enablement always does and quiet
// hours still mute everything below ERROR.
func (g *Gate) SystemAlert(ctx context.Context, severity, message string) {
	policy := g.policy.Read()
	now := g.now()

	if !policy.SystemAlerts.Enabled || !policy.Discord.Enabled {
		g.drop("disabled")
		return
	}
	if !severityAllowed(policy.SystemAlerts.AlertTypes, severity) {
		g.drop("severity_filtered")
		return
	}
	if severity != "ERROR" && policy.Discord.QuietHours.InQuietHours(now.In(g.tz)) {
		g.drop("quiet_hours")
		return
	}

	if err := g.webhook.send(ctx, systemPayload(severity, message, now)); err != nil {
		log.Warn().Err(err).Str("severity", severity).Msg("system alert delivery failed")
		g.drop("delivery_failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues("system").Inc()
}

// recentEmitsLocked counts successful emits in the trailing hour and
// prunes older entries. Caller holds the mutex.
func (g *Gate) recentEmitsLocked(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	kept := g.emitTimes[:0]
	for _, t := range g.emitTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.emitTimes = kept
	return len(kept)
}

func (g *Gate) drop(reason string) {
	metrics.NotificationsDropped.WithLabelValues(reason).Inc()
}

func severityAllowed(allowed []string, severity string) bool {
	for _, s := range allowed {
		if s == severity {
			return true
		}
	}
	return false
}
