package db

import (
	"encoding/json"
	"strconv"

	"augurbot/internal/config"
	"augurbot/internal/logger"
)

// LoadConfig merges the compile-time defaults with any overrides persisted
// in the config table, returning a fully populated Config.
func (d *DB) LoadConfig() *config.Config {
	cfg := config.Default()

	rows, err := d.sql.Query("SELECT key, value FROM config")
	if err != nil {
		logger.Warn("Config", "Failed to read config table, using defaults: "+err.Error())
		return cfg
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			continue
		}
		kv[k] = v
	}

	applyOverride := func(key string, set func(string)) {
		if v, ok := kv[key]; ok {
			set(v)
		}
	}

	applyOverride("min_edge_threshold", func(v string) { cfg.MinEdgeThreshold, _ = strconv.ParseFloat(v, 64) })
	applyOverride("min_volume", func(v string) { cfg.MinVolume, _ = strconv.ParseFloat(v, 64) })
	applyOverride("kelly_fraction", func(v string) { cfg.KellyFraction, _ = strconv.ParseFloat(v, 64) })
	applyOverride("max_single_bet_fraction", func(v string) { cfg.MaxSingleBetFraction, _ = strconv.ParseFloat(v, 64) })
	applyOverride("max_exposure_fraction", func(v string) { cfg.MaxExposureFraction, _ = strconv.ParseFloat(v, 64) })
	applyOverride("max_event_exposure_fraction", func(v string) { cfg.MaxEventExposureFrac, _ = strconv.ParseFloat(v, 64) })
	applyOverride("re_estimate_trigger", func(v string) { cfg.ReEstimateTrigger, _ = strconv.ParseFloat(v, 64) })
	applyOverride("bankroll", func(v string) { cfg.Bankroll, _ = strconv.ParseFloat(v, 64) })
	applyOverride("scan_times", func(v string) {
		var times []int
		if err := json.Unmarshal([]byte(v), &times); err == nil {
			cfg.ScanTimes = times
		}
	})
	applyOverride("scan_timezone", func(v string) { cfg.ScanTimezone = v })
	applyOverride("markets_per_platform", func(v string) { cfg.MarketsPerPlatform, _ = strconv.Atoi(v) })
	applyOverride("web_search_max_uses", func(v string) { cfg.WebSearchMaxUses, _ = strconv.Atoi(v) })
	applyOverride("categories", func(v string) {
		var cats []string
		if err := json.Unmarshal([]byte(v), &cats); err == nil {
			cfg.Categories = cats
		}
	})
	applyOverride("price_check_enabled", func(v string) { cfg.PriceCheckEnabled = v == "true" })
	applyOverride("price_check_interval_hours", func(v string) { cfg.PriceCheckIntervalHours, _ = strconv.ParseFloat(v, 64) })
	applyOverride("estimate_cache_hours", func(v string) { cfg.EstimateCacheHours, _ = strconv.ParseFloat(v, 64) })
	applyOverride("resolution_check_enabled", func(v string) { cfg.ResolutionCheckEnabled = v == "true" })
	applyOverride("resolution_check_interval_hours", func(v string) { cfg.ResolutionCheckIntervalH, _ = strconv.ParseFloat(v, 64) })
	applyOverride("trade_sync_enabled", func(v string) { cfg.TradeSyncEnabled = v == "true" })
	applyOverride("trade_sync_interval_hours", func(v string) { cfg.TradeSyncIntervalHours, _ = strconv.ParseFloat(v, 64) })
	applyOverride("platforms_enabled", func(v string) {
		var m map[string]bool
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			cfg.PlatformsEnabled = m
		}
	})
	applyOverride("kalshi_rsa_configured", func(v string) { cfg.KalshiRSAConfigured = v == "true" })
	applyOverride("auto_trade_enabled", func(v string) { cfg.AutoTradeEnabled = v == "true" })
	applyOverride("auto_trade_min_ev", func(v string) { cfg.AutoTradeMinEV, _ = strconv.ParseFloat(v, 64) })
	applyOverride("max_close_hours", func(v string) { cfg.MaxCloseHours, _ = strconv.ParseFloat(v, 64) })
	applyOverride("notifications_enabled", func(v string) { cfg.NotificationsEnabled = v == "true" })
	applyOverride("notification_email", func(v string) { cfg.NotificationEmail = v })
	applyOverride("slack_webhook_url", func(v string) { cfg.SlackWebhookURL = v })
	applyOverride("notification_min_ev", func(v string) { cfg.NotificationMinEV, _ = strconv.ParseFloat(v, 64) })
	applyOverride("daily_digest_enabled", func(v string) { cfg.DailyDigestEnabled = v == "true" })
	applyOverride("daily_digest_hour", func(v string) { cfg.DailyDigestHour, _ = strconv.Atoi(v) })
	applyOverride("use_premium_model", func(v string) { cfg.UsePremiumModel = v == "true" })
	applyOverride("default_model", func(v string) { cfg.DefaultModel = v })
	applyOverride("high_value_model", func(v string) { cfg.HighValueModel = v })
	applyOverride("high_value_volume_threshold", func(v string) { cfg.HighValueVolumeThresh, _ = strconv.ParseFloat(v, 64) })
	applyOverride("pre_screen_model", func(v string) { cfg.PreScreenModel = v })
	applyOverride("batch_mode_enabled", func(v string) { cfg.BatchModeEnabled = v == "true" })
	applyOverride("batch_poll_seconds", func(v string) { cfg.BatchPollSeconds, _ = strconv.ParseFloat(v, 64) })
	applyOverride("batch_timeout_seconds", func(v string) { cfg.BatchTimeoutSeconds, _ = strconv.ParseFloat(v, 64) })

	return cfg
}

// SaveConfig persists the fields of cfg into the config key-value table.
// ModelCosts is not written.
func (d *DB) SaveConfig(cfg *config.Config) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	set := func(key, value string) error {
		_, err := tx.Exec(`INSERT INTO config(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	}

	scanTimesJSON, _ := json.Marshal(cfg.ScanTimes)
	platformsJSON, _ := json.Marshal(cfg.PlatformsEnabled)
	categoriesJSON, _ := json.Marshal(cfg.Categories)

	fields := map[string]string{
		"min_edge_threshold":              strconv.FormatFloat(cfg.MinEdgeThreshold, 'f', -1, 64),
		"min_volume":                      strconv.FormatFloat(cfg.MinVolume, 'f', -1, 64),
		"kelly_fraction":                  strconv.FormatFloat(cfg.KellyFraction, 'f', -1, 64),
		"max_single_bet_fraction":         strconv.FormatFloat(cfg.MaxSingleBetFraction, 'f', -1, 64),
		"max_exposure_fraction":           strconv.FormatFloat(cfg.MaxExposureFraction, 'f', -1, 64),
		"max_event_exposure_fraction":     strconv.FormatFloat(cfg.MaxEventExposureFrac, 'f', -1, 64),
		"re_estimate_trigger":             strconv.FormatFloat(cfg.ReEstimateTrigger, 'f', -1, 64),
		"bankroll":                        strconv.FormatFloat(cfg.Bankroll, 'f', -1, 64),
		"scan_times":                      string(scanTimesJSON),
		"scan_timezone":                   cfg.ScanTimezone,
		"markets_per_platform":            strconv.Itoa(cfg.MarketsPerPlatform),
		"web_search_max_uses":             strconv.Itoa(cfg.WebSearchMaxUses),
		"categories":                      string(categoriesJSON),
		"price_check_enabled":             strconv.FormatBool(cfg.PriceCheckEnabled),
		"price_check_interval_hours":      strconv.FormatFloat(cfg.PriceCheckIntervalHours, 'f', -1, 64),
		"estimate_cache_hours":            strconv.FormatFloat(cfg.EstimateCacheHours, 'f', -1, 64),
		"resolution_check_enabled":        strconv.FormatBool(cfg.ResolutionCheckEnabled),
		"resolution_check_interval_hours": strconv.FormatFloat(cfg.ResolutionCheckIntervalH, 'f', -1, 64),
		"trade_sync_enabled":              strconv.FormatBool(cfg.TradeSyncEnabled),
		"trade_sync_interval_hours":       strconv.FormatFloat(cfg.TradeSyncIntervalHours, 'f', -1, 64),
		"platforms_enabled":               string(platformsJSON),
		"kalshi_rsa_configured":           strconv.FormatBool(cfg.KalshiRSAConfigured),
		"auto_trade_enabled":              strconv.FormatBool(cfg.AutoTradeEnabled),
		"auto_trade_min_ev":               strconv.FormatFloat(cfg.AutoTradeMinEV, 'f', -1, 64),
		"max_close_hours":                 strconv.FormatFloat(cfg.MaxCloseHours, 'f', -1, 64),
		"notifications_enabled":           strconv.FormatBool(cfg.NotificationsEnabled),
		"notification_email":             cfg.NotificationEmail,
		"slack_webhook_url":              cfg.SlackWebhookURL,
		"notification_min_ev":            strconv.FormatFloat(cfg.NotificationMinEV, 'f', -1, 64),
		"daily_digest_enabled":           strconv.FormatBool(cfg.DailyDigestEnabled),
		"daily_digest_hour":              strconv.Itoa(cfg.DailyDigestHour),
		"use_premium_model":              strconv.FormatBool(cfg.UsePremiumModel),
		"default_model":                  cfg.DefaultModel,
		"high_value_model":               cfg.HighValueModel,
		"high_value_volume_threshold":    strconv.FormatFloat(cfg.HighValueVolumeThresh, 'f', -1, 64),
		"pre_screen_model":               cfg.PreScreenModel,
		"batch_mode_enabled":             strconv.FormatBool(cfg.BatchModeEnabled),
		"batch_poll_seconds":             strconv.FormatFloat(cfg.BatchPollSeconds, 'f', -1, 64),
		"batch_timeout_seconds":          strconv.FormatFloat(cfg.BatchTimeoutSeconds, 'f', -1, 64),
	}

	for k, v := range fields {
		if err := set(k, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}
