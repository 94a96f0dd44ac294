package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

const (
	webhookTimeout = 10 * time.Second

	botUsername = "arbiscan"
	botAvatar   = "https://cdn.discordapp.com/embed/avatars/0.png"

	colorGreen  = 0x00ff00
	colorYellow = 0xffff00
	colorOrange = 0xff8800
)

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Timestamp string       `json:"timestamp"`
	Fields    []embedField `json:"fields,omitempty"`
	Footer    *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
}

type webhookPayload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatar_url"`
	Embeds    []embed `json:"embeds,omitempty"`
}

// Webhook delivers messages to a Discord-compatible endpoint.
type Webhook struct {
	url   string
	httpc *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:   url,
		httpc: &http.Client{Timeout: webhookTimeout},
	}
}

// Configured reports whether a webhook URL is set.
func (w *Webhook) Configured() bool { return w.url != "" }

// profitColor maps the estimated profit band to the embed color.
func profitColor(profitPct decimal.Decimal) int {
	switch {
	case profitPct.GreaterThanOrEqual(decimal.RequireFromString("0.5")):
		return colorGreen
	case profitPct.GreaterThanOrEqual(decimal.RequireFromString("0.1")):
		return colorYellow
	default:
		return colorOrange
	}
}

// opportunityPayload builds the rich embed for one opportunity.
func opportunityPayload(o domain.Opportunity, useEmbeds bool) webhookPayload {
	title := fmt.Sprintf("Arbitrage: %s %s -> %s (%s%%)",
		o.Symbol, o.BuyExchange, o.SellExchange, o.ProfitPct.StringFixed(3))

	if !useEmbeds {
		return webhookPayload{
			Content:   title,
			Username:  botUsername,
			AvatarURL: botAvatar,
		}
	}

	return webhookPayload{
		Username:  botUsername,
		AvatarURL: botAvatar,
		Embeds: []embed{{
			Title:     title,
			Color:     profitColor(o.ProfitPct),
			Timestamp: o.Timestamp.UTC().Format(time.RFC3339),
			Fields: []embedField{
				{Name: "Profit", Value: o.ProfitPct.StringFixed(3) + " %", Inline: true},
				{Name: "Amount", Value: o.ProfitAmount().StringFixed(0), Inline: true},
				{Name: "Volume", Value: o.MaxVolume.String(), Inline: true},
				{Name: "Buy", Value: fmt.Sprintf("%s @ %s", o.BuyExchange, o.BuyPrice.String()), Inline: true},
				{Name: "Sell", Value: fmt.Sprintf("%s @ %s", o.SellExchange, o.SellPrice.String()), Inline: true},
				{Name: "Spread", Value: o.PriceDiffPct.StringFixed(3) + " %", Inline: true},
			},
		}},
	}
}

// systemPayload builds a plain embed for a system alert.
func systemPayload(severity, message string, at time.Time) webhookPayload {
	color := colorOrange
	if severity == "ERROR" {
		color = 0xff0000
	}
	return webhookPayload{
		Username:  botUsername,
		AvatarURL: botAvatar,
		Embeds: []embed{{
			Title:     fmt.Sprintf("[%s] %s", severity, message),
			Color:     color,
			Timestamp: at.UTC().Format(time.RFC3339),
		}},
	}
}

// send POSTs the payload. Anything outside 2xx is a delivery failure; the
// normal Discord response is 204.
func (w *Webhook) send(ctx context.Context, payload webhookPayload) error {
	if w.url == "" {
		return fmt.Errorf("%w: webhook url not configured", errs.ErrConfigInvalid)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook: %v", errs.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook status %d", errs.ErrTransientNetwork, resp.StatusCode)
	}
	return nil
}
