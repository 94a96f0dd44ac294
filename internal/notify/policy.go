// Package notify gates detected opportunities and delivers the survivors
// to a Discord webhook, under an operator-editable JSON policy.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Policy is the notifications.json document. It is re-read on every gate
// decision so operator edits take effect without a restart.
type Policy struct {
	ArbitrageAlerts ArbitragePolicy `json:"arbitrage_alerts"`
	SystemAlerts    SystemPolicy    `json:"system_alerts"`
	Discord         DiscordPolicy   `json:"discord"`
}

type ArbitragePolicy struct {
	Enabled                 bool            `json:"enabled"`
	MinProfitThreshold      decimal.Decimal `json:"min_profit_threshold"`
	MinProfitAmount         decimal.Decimal `json:"min_profit_amount"`
	CooldownMinutes         int             `json:"cooldown_minutes"`
	MaxNotificationsPerHour int             `json:"max_notifications_per_hour"`
}

type SystemPolicy struct {
	Enabled    bool     `json:"enabled"`
	AlertTypes []string `json:"alert_types"`
}

type DiscordPolicy struct {
	Enabled    bool       `json:"enabled"`
	UseEmbeds  bool       `json:"use_embeds"`
	QuietHours QuietHours `json:"quiet_hours"`
}

type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "HH:MM"
	End     string `json:"end"`
}

// DefaultPolicy is what a missing policy file yields.
func DefaultPolicy() Policy {
	return Policy{
		ArbitrageAlerts: ArbitragePolicy{
			Enabled:                 true,
			MinProfitThreshold:      decimal.RequireFromString("0.3"),
			MinProfitAmount:         decimal.NewFromInt(1000),
			CooldownMinutes:         5,
			MaxNotificationsPerHour: 20,
		},
		SystemAlerts: SystemPolicy{
			Enabled:    true,
			AlertTypes: []string{"ERROR", "WARNING"},
		},
		Discord: DiscordPolicy{
			Enabled:   true,
			UseEmbeds: true,
			QuietHours: QuietHours{
				Enabled: false,
				Start:   "23:00",
				End:     "07:00",
			},
		},
	}
}

// PolicyStore reads and writes the JSON policy document. Writes are
// last-write-wins; the file is small enough that the OS cache makes
// per-decision reads cheap.
type PolicyStore struct {
	path string
}

func NewPolicyStore(path string) *PolicyStore {
	return &PolicyStore{path: path}
}

// Read loads the policy, returning defaults when the file is missing. A
// present but unparsable file also yields defaults with a warning rather
// than silencing all alerts.
func (ps *PolicyStore) Read() Policy {
	data, err := os.ReadFile(ps.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", ps.path).Msg("policy file unreadable, using defaults")
		}
		return DefaultPolicy()
	}

	policy := DefaultPolicy()
	if err := json.Unmarshal(data, &policy); err != nil {
		log.Warn().Err(err).Str("path", ps.path).Msg("policy file unparsable, using defaults")
		return DefaultPolicy()
	}
	return policy
}

// Write persists the policy document.
func (ps *PolicyStore) Write(policy Policy) error {
	data, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if err := os.WriteFile(ps.path, data, 0o644); err != nil {
		return fmt.Errorf("write policy: %w", err)
	}
	return nil
}

// InQuietHours reports whether t falls inside the configured window,
// handling windows that wrap across midnight.
func (q QuietHours) InQuietHours(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, okStart := parseClock(q.Start)
	end, okEnd := parseClock(q.End)
	if !okStart || !okEnd {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	if start <= end {
		return minutes >= start && minutes < end
	}
	// Window wraps midnight, e.g. 23:00-07:00.
	return minutes >= start || minutes < end
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
