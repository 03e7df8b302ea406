// Package notifier sends best-effort outbound alerts for scan results,
// scheduled-job failures, and the daily activity digest. Email and webhook
// channels are attempted independently; one channel's failure never blocks
// the other.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"augurbot/internal/config"
	"augurbot/internal/db"
	"augurbot/internal/logger"
	"augurbot/internal/orchestrator"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
)

const resendURL = "https://api.resend.com/emails"

// Notifier sends scan results and failure alerts over email (Resend API)
// and webhook (Slack-compatible incoming webhook) channels.
type Notifier struct {
	client       *resty.Client
	cfg          *config.Config
	resendAPIKey string
}

// New builds a Notifier. resendAPIKey may be empty, in which case the email
// channel is silently skipped (matching the reference notifier's
// "RESEND_API_KEY not set" behavior) rather than erroring.
func New(cfg *config.Config, resendAPIKey string) *Notifier {
	return &Notifier{
		client:       resty.New().SetTimeout(15 * time.Second),
		cfg:          cfg,
		resendAPIKey: resendAPIKey,
	}
}

// ChannelResult reports whether each enabled channel succeeded.
type ChannelResult struct {
	Email   *bool
	Webhook *bool
}

type recNotification struct {
	Question      string
	Direction     string
	Edge          float64
	EV            float64
	AIProbability float64
	MarketPrice   float64
	KellyFraction float64
	PlatformID    string
}

func toNotification(store *db.DB, rec *db.Recommendation) recNotification {
	n := recNotification{
		Direction:     rec.Direction,
		Edge:          rec.Edge,
		EV:            rec.EV,
		MarketPrice:   rec.EntryPrice,
		KellyFraction: rec.KellyFraction,
	}
	if rec.Direction == string(dbDirectionYes) {
		n.AIProbability = rec.EntryPrice + rec.Edge
	} else {
		n.AIProbability = 1 - (rec.EntryPrice + rec.Edge)
	}
	if m, err := store.GetMarket(rec.MarketID); err == nil && m != nil {
		n.Question = m.Question
		n.PlatformID = m.PlatformID
	}
	return n
}

// dbDirectionYes mirrors calc.Yes without importing calc just for one
// string constant.
const dbDirectionYes = "yes"

// SendScanNotifications filters summary.Recommendations by the configured
// minimum EV and, if anything survives the filter and notifications are
// enabled, sends it over every configured channel.
func (n *Notifier) SendScanNotifications(ctx context.Context, store *db.DB, summary *orchestrator.ScanSummary) ChannelResult {
	if !n.cfg.NotificationsEnabled {
		return ChannelResult{}
	}

	var filtered []recNotification
	for _, rec := range summary.Recommendations {
		if rec.EV < n.cfg.NotificationMinEV {
			continue
		}
		filtered = append(filtered, toNotification(store, rec))
	}
	if len(filtered) == 0 {
		logger.Info("Notifier", fmt.Sprintf("no recommendations above min EV %.0f%%, skipping", n.cfg.NotificationMinEV*100))
		return ChannelResult{}
	}

	return n.send(ctx, filtered, digestStats{
		MarketsFound:      summary.MarketsFound,
		MarketsResearched: summary.MarketsResearched,
		Duration:          summary.Duration,
	})
}

// SendTestNotification exercises both channels with synthetic data, for an
// operator verifying their notification configuration.
func (n *Notifier) SendTestNotification(ctx context.Context) ChannelResult {
	test := []recNotification{{
		Question:      "Test: Will this notification work?",
		Direction:     "yes",
		Edge:          0.12,
		EV:            0.10,
		AIProbability: 0.65,
		MarketPrice:   0.53,
		KellyFraction: 0.15,
		PlatformID:    "TEST-MARKET",
	}}
	return n.send(ctx, test, digestStats{MarketsFound: 25, MarketsResearched: 10, Duration: 2 * time.Minute})
}

// SendFailureAlert emits a single alert for a failing scheduled job, naming
// its error type, message, and context. Every channel configured for scan
// notifications also receives failure alerts, since an operator silent on
// scan results but wanting failure pages is an unusual configuration the
// reference engine doesn't distinguish either.
func (n *Notifier) SendFailureAlert(ctx context.Context, job string, err error) {
	if !n.cfg.NotificationsEnabled {
		return
	}
	text := fmt.Sprintf(":rotating_light: AugurBot job %q failed: %T: %v (%s)", job, err, err, time.Now().UTC().Format("Jan 2, 15:04 MST"))

	if n.cfg.NotificationEmail != "" && n.resendAPIKey != "" {
		if err := n.sendEmailRaw(ctx, fmt.Sprintf("AugurBot: %s job failed", job), text, "<pre>"+text+"</pre>"); err != nil {
			logger.Error("Notifier", fmt.Sprintf("failure alert email: %v", err))
		}
	}
	if n.cfg.SlackWebhookURL != "" {
		if err := n.sendWebhookRaw(ctx, text); err != nil {
			logger.Error("Notifier", fmt.Sprintf("failure alert webhook: %v", err))
		}
	}
}

// SendDailyDigest summarizes the last 24 hours of LLM spend and realized
// category performance. It is a supplement over the reference notifier,
// which never implements the job its own daily_digest_enabled flag
// describes.
func (n *Notifier) SendDailyDigest(ctx context.Context, store *db.DB) {
	if !n.cfg.NotificationsEnabled || !n.cfg.DailyDigestEnabled {
		return
	}

	cost, err := store.TotalCostSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		logger.Warn("Notifier", fmt.Sprintf("daily digest: cost lookup: %v", err))
	}
	categories, err := store.CategoryPerformance()
	if err != nil {
		logger.Warn("Notifier", fmt.Sprintf("daily digest: category performance: %v", err))
	}

	var catLines []string
	for _, c := range categories {
		if c.Count == 0 {
			continue
		}
		catLines = append(catLines, fmt.Sprintf(
			"%s: %s resolved markets, %.0f%% win rate, Brier %.3f, P&L $%s",
			c.Category, humanize.Comma(int64(c.Count)), c.WinRate*100, c.AvgBrier, humanize.Commaf(c.TotalPnL),
		))
	}
	if len(catLines) == 0 {
		catLines = []string{"no resolved markets yet"}
	}

	text := fmt.Sprintf(
		":bar_chart: AugurBot daily digest (%s)\nLLM spend, last 24h: $%s\n\n%s",
		time.Now().UTC().Format("Jan 2"), humanize.Commaf(cost), strings.Join(catLines, "\n"),
	)

	if n.cfg.NotificationEmail != "" && n.resendAPIKey != "" {
		if err := n.sendEmailRaw(ctx, "AugurBot daily digest", text, "<pre>"+text+"</pre>"); err != nil {
			logger.Error("Notifier", fmt.Sprintf("daily digest email: %v", err))
		}
	}
	if n.cfg.SlackWebhookURL != "" {
		if err := n.sendWebhookRaw(ctx, text); err != nil {
			logger.Error("Notifier", fmt.Sprintf("daily digest webhook: %v", err))
		}
	}
}

type digestStats struct {
	MarketsFound      int
	MarketsResearched int
	Duration          time.Duration
}

func (n *Notifier) send(ctx context.Context, recs []recNotification, stats digestStats) ChannelResult {
	var result ChannelResult

	if n.cfg.NotificationEmail != "" && n.resendAPIKey != "" {
		subject, text, html := formatEmail(recs, stats)
		ok := true
		if err := n.sendEmailRaw(ctx, subject, text, html); err != nil {
			logger.Error("Notifier", fmt.Sprintf("email send: %v", err))
			ok = false
		} else {
			logger.Success("Notifier", fmt.Sprintf("email sent to %s", n.cfg.NotificationEmail))
		}
		result.Email = &ok
	}

	if n.cfg.SlackWebhookURL != "" {
		ok := true
		if err := n.sendWebhookRaw(ctx, formatSlack(recs, stats)); err != nil {
			logger.Error("Notifier", fmt.Sprintf("webhook send: %v", err))
			ok = false
		} else {
			logger.Success("Notifier", fmt.Sprintf("webhook sent (%d recs)", len(recs)))
		}
		result.Webhook = &ok
	}

	return result
}

func formatEmail(recs []recNotification, stats digestStats) (subject, text, html string) {
	now := time.Now().UTC().Format("Jan 2, 15:04 UTC")
	count := len(recs)
	plural := ""
	if count != 1 {
		plural = "s"
	}
	subject = fmt.Sprintf("AugurBot: %d high-EV bet%s found (%s)", count, plural, now)

	var blocks []string
	for _, r := range recs {
		blocks = append(blocks, formatRecText(r))
	}
	text = fmt.Sprintf(
		"AugurBot scan completed at %s\nMarkets found: %s | Researched: %s | Duration: %s\n\n--- High-EV Recommendations ---\n\n%s\n\n---\nAugurBot\n",
		now, humanize.Comma(int64(stats.MarketsFound)), humanize.Comma(int64(stats.MarketsResearched)),
		stats.Duration.Round(time.Second), strings.Join(blocks, "\n\n"),
	)

	var htmlItems strings.Builder
	for _, r := range recs {
		htmlItems.WriteString(formatRecHTML(r))
	}
	html = fmt.Sprintf(
		`<div style="font-family:sans-serif;background:#0a0a0c;color:#fafafa;padding:24px">`+
			`<h2 style="margin-top:0">AugurBot Scan Results</h2>`+
			`<p style="color:#a1a1aa">Markets: %s found, %s researched (%s)</p>%s</div>`,
		humanize.Comma(int64(stats.MarketsFound)), humanize.Comma(int64(stats.MarketsResearched)),
		stats.Duration.Round(time.Second), htmlItems.String(),
	)
	return subject, text, html
}

func formatRecText(r recNotification) string {
	betLabel := strings.ToUpper(r.Direction)
	return fmt.Sprintf(
		"  %s\n  Bet: %s | Edge: %.1f%% | EV: %.1f%%\n  AI: %.0f%% vs Market: %.0f%% | Kelly: %.1f%%",
		r.Question, betLabel, r.Edge*100, r.EV*100, r.AIProbability*100, r.MarketPrice*100, r.KellyFraction*100,
	)
}

func formatRecHTML(r recNotification) string {
	betLabel := strings.ToUpper(r.Direction)
	return fmt.Sprintf(
		`<div style="margin-bottom:16px;padding:12px;background:#1a1a1e;border-radius:8px">`+
			`<div style="font-weight:600;margin-bottom:4px">%s</div>`+
			`<div style="color:#a1a1aa;font-size:14px">Bet: %s &middot; Edge: %.1f%% &middot; EV: %.1f%%<br>`+
			`AI: %.0f%% vs Market: %.0f%% &middot; Kelly: %.1f%%</div></div>`,
		r.Question, betLabel, r.Edge*100, r.EV*100, r.AIProbability*100, r.MarketPrice*100, r.KellyFraction*100,
	)
}

func formatSlack(recs []recNotification, stats digestStats) string {
	now := time.Now().UTC().Format("Jan 2, 15:04 UTC")
	count := len(recs)
	plural := ""
	if count != 1 {
		plural = "s"
	}
	var blocks []string
	for _, r := range recs {
		url := ""
		if r.PlatformID != "" {
			url = fmt.Sprintf("https://kalshi.com/markets/%s", strings.ToLower(r.PlatformID))
		}
		title := r.Question
		if url != "" {
			title = fmt.Sprintf("<%s|%s>", url, r.Question)
		}
		blocks = append(blocks, fmt.Sprintf(
			"*%s*\nBet: %s | Edge: %.1f%% | EV: %.1f%%\nAI: %.0f%% vs Market: %.0f%% | Kelly: %.1f%%",
			title, strings.ToUpper(r.Direction), r.Edge*100, r.EV*100, r.AIProbability*100, r.MarketPrice*100, r.KellyFraction*100,
		))
	}
	return fmt.Sprintf(
		":chart_with_upwards_trend: *AugurBot: %d high-EV bet%s found*\n_%s | %s markets scanned, %s researched, %s_\n\n%s",
		count, plural, now, humanize.Comma(int64(stats.MarketsFound)), humanize.Comma(int64(stats.MarketsResearched)),
		stats.Duration.Round(time.Second), strings.Join(blocks, "\n\n"),
	)
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

func (n *Notifier) sendEmailRaw(ctx context.Context, subject, text, html string) error {
	if n.resendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY not set, skipping email")
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+n.resendAPIKey).
		SetBody(emailRequest{
			From:    "AugurBot <notifications@augurbot.com>",
			To:      []string{n.cfg.NotificationEmail},
			Subject: subject,
			Text:    text,
			HTML:    html,
		}).
		Post(resendURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("resend returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type webhookRequest struct {
	Text string `json:"text"`
}

func (n *Notifier) sendWebhookRaw(ctx context.Context, text string) error {
	resp, err := n.client.R().SetContext(ctx).SetBody(webhookRequest{Text: text}).Post(n.cfg.SlackWebhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
