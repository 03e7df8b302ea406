// Package config defines the tunable parameters governing the scan,
// estimate, decide, and trade pipeline, along with their defaults.
package config

// ModelCost describes per-million-token pricing for a single LLM model,
// used to turn token counts into an estimated dollar cost.
type ModelCost struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// Config holds every runtime-tunable parameter for the pipeline. A single
// instance is shared process-wide and persisted to the config table so
// changes survive restarts.
type Config struct {
	// Decision thresholds
	MinEdgeThreshold     float64 `json:"min_edge_threshold"`
	MinVolume            float64 `json:"min_volume"`
	KellyFraction        float64 `json:"kelly_fraction"`
	MaxSingleBetFraction float64 `json:"max_single_bet_fraction"`
	MaxExposureFraction  float64 `json:"max_exposure_fraction"`
	MaxEventExposureFrac float64 `json:"max_event_exposure_fraction"`
	ReEstimateTrigger    float64 `json:"re_estimate_trigger"`
	Bankroll             float64 `json:"bankroll"`

	// Scan cadence
	ScanTimes          []int    `json:"scan_times"` // hours in ScanTimezone, e.g. [8, 14]
	ScanTimezone       string   `json:"scan_timezone"`
	MarketsPerPlatform int      `json:"markets_per_platform"`
	WebSearchMaxUses   int      `json:"web_search_max_uses"`
	Categories         []string `json:"categories"` // market categories to fetch, e.g. ["sports", "economics"]

	// Background job cadence / enablement
	PriceCheckEnabled        bool    `json:"price_check_enabled"`
	PriceCheckIntervalHours  float64 `json:"price_check_interval_hours"`
	EstimateCacheHours       float64 `json:"estimate_cache_hours"`
	ResolutionCheckEnabled   bool    `json:"resolution_check_enabled"`
	ResolutionCheckIntervalH float64 `json:"resolution_check_interval_hours"`
	TradeSyncEnabled         bool    `json:"trade_sync_enabled"`
	TradeSyncIntervalHours   float64 `json:"trade_sync_interval_hours"`

	// Venue / platform
	PlatformsEnabled    map[string]bool `json:"platforms_enabled"`
	KalshiRSAConfigured bool            `json:"kalshi_rsa_configured"`

	// Trading
	AutoTradeEnabled bool    `json:"auto_trade_enabled"`
	AutoTradeMinEV   float64 `json:"auto_trade_min_ev"`
	MaxCloseHours    float64 `json:"max_close_hours"`

	// Notifications
	NotificationsEnabled bool    `json:"notifications_enabled"`
	NotificationEmail    string  `json:"notification_email"`
	SlackWebhookURL      string  `json:"slack_webhook_url"`
	NotificationMinEV    float64 `json:"notification_min_ev"`
	DailyDigestEnabled   bool    `json:"daily_digest_enabled"`
	DailyDigestHour      int     `json:"daily_digest_hour"` // hour in ScanTimezone

	// Model selection
	UsePremiumModel       bool    `json:"use_premium_model"`
	DefaultModel          string  `json:"default_model"`
	HighValueModel        string  `json:"high_value_model"`
	HighValueVolumeThresh float64 `json:"high_value_volume_threshold"`
	PreScreenModel        string  `json:"pre_screen_model"`

	// Batch estimation
	BatchModeEnabled   bool    `json:"batch_mode_enabled"`
	BatchPollSeconds   float64 `json:"batch_poll_seconds"`
	BatchTimeoutSeconds float64 `json:"batch_timeout_seconds"`

	// ModelCosts maps a model id to its per-million-token pricing, used by
	// the LLM researcher to report an estimated_cost alongside every
	// estimate it produces.
	ModelCosts map[string]ModelCost `json:"model_costs"`
}

// Default returns the baseline configuration used the first time the
// database is created, before any operator override is persisted.
func Default() *Config {
	return &Config{
		MinEdgeThreshold:     0.05,
		MinVolume:            10000.0,
		KellyFraction:        0.33,
		MaxSingleBetFraction: 0.05,
		MaxExposureFraction:  0.25,
		MaxEventExposureFrac: 0.10,
		ReEstimateTrigger:    0.05,
		Bankroll:             10000.0,

		ScanTimes:          []int{8, 14},
		ScanTimezone:       "UTC",
		MarketsPerPlatform: 200,
		WebSearchMaxUses:   5,
		Categories:         []string{"sports", "economics"},

		PriceCheckEnabled:        true,
		PriceCheckIntervalHours:  1,
		EstimateCacheHours:       12,
		ResolutionCheckEnabled:   true,
		ResolutionCheckIntervalH: 6,
		TradeSyncEnabled:         true,
		TradeSyncIntervalHours:   1,

		PlatformsEnabled:    map[string]bool{"kalshi": true},
		KalshiRSAConfigured: false,

		AutoTradeEnabled: false,
		AutoTradeMinEV:   0.10,
		MaxCloseHours:    24 * 90,

		NotificationsEnabled: false,
		NotificationEmail:    "",
		SlackWebhookURL:      "",
		NotificationMinEV:    0.08,
		DailyDigestEnabled:   true,
		DailyDigestHour:      18,

		UsePremiumModel:       false,
		DefaultModel:          "claude-sonnet-4-5-20250929",
		HighValueModel:        "claude-opus-4-1-20250805",
		HighValueVolumeThresh: 100000.0,
		PreScreenModel:        "claude-haiku-4-5-20251001",

		BatchModeEnabled:    false,
		BatchPollSeconds:    15,
		BatchTimeoutSeconds: 1800,

		ModelCosts: map[string]ModelCost{
			"claude-sonnet-4-5-20250929": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
			"claude-opus-4-1-20250805":   {InputPerMillion: 15.0, OutputPerMillion: 75.0},
			"claude-haiku-4-5-20251001":  {InputPerMillion: 1.0, OutputPerMillion: 5.0},
		},
	}
}

// PlatformFee returns the taker fee curve coefficient for a given venue.
// Kalshi's fee is a function of price, so this returns the coefficient used
// by internal/calc, not a flat percentage.
func PlatformFee(platform string) float64 {
	switch platform {
	case "kalshi":
		return 0.07
	default:
		return 0.0
	}
}
