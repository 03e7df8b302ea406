package db

import "time"

// Platform identifies the venue a market was sourced from.
type Platform string

const (
	PlatformKalshi Platform = "kalshi"
)

// MarketStatus is the lifecycle state of a tracked market.
type MarketStatus string

const (
	MarketActive   MarketStatus = "active"
	MarketClosed   MarketStatus = "closed"
	MarketResolved MarketStatus = "resolved"
)

// Confidence is the LLM researcher's self-reported confidence band.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Direction is the recommended or traded side of a binary market.
type Direction string

const (
	DirectionYes Direction = "yes"
	DirectionNo  Direction = "no"
)

// RecommendationStatus tracks whether a recommendation is still actionable.
type RecommendationStatus string

const (
	RecommendationActive   RecommendationStatus = "active"
	RecommendationExpired  RecommendationStatus = "expired"
	RecommendationResolved RecommendationStatus = "resolved"
)

// TradeStatus tracks whether a position is still open.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

// TradeSource distinguishes manually entered trades from venue-synced fills.
type TradeSource string

const (
	TradeSourceManual  TradeSource = "manual"
	TradeSourceAPISync TradeSource = "api_sync"
)

// Market is a tracked binary prediction market.
type Market struct {
	ID                 string
	Platform           string
	PlatformID         string
	Question           string
	Description        string
	ResolutionCriteria string
	Category           string
	SportType          string
	OutcomeLabel       string
	CloseDate          *time.Time
	Liquidity          float64
	Status             string
	Outcome            *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MarketSnapshot is a point-in-time price/volume reading for a market.
type MarketSnapshot struct {
	ID        string
	MarketID  string
	PriceYes  float64
	Volume    float64
	ScanID    *string
	TakenAt   time.Time
}

// AIEstimate is a single blind probability estimate produced by the
// LLM researcher for one market snapshot.
type AIEstimate struct {
	ID                string
	MarketID          string
	SnapshotID        string
	Model             string
	Probability       float64
	Confidence        string
	Reasoning         string
	KeyEvidence       []string
	KeyUncertainties  []string
	InputTokens       int
	OutputTokens      int
	EstimatedCost     float64
	CreatedAt         time.Time
}

// Recommendation is a tradeable edge derived from an estimate.
type Recommendation struct {
	ID             string
	MarketID       string
	EstimateID     string
	Direction      string
	EntryPrice     float64
	Edge           float64
	EV             float64
	KellyFraction  float64
	SuggestedWager float64
	Status         string
	Outcome        *string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Trade is a position taken (or recorded as taken) in a market.
type Trade struct {
	ID               string
	MarketID         string
	RecommendationID *string
	Platform         string
	Direction        string
	EntryPrice       float64
	ExitPrice        *float64
	Wager            float64
	FeesPaid         float64
	PnL              *float64
	Status           string
	Source           string
	ExternalRef      *string
	OpenedAt         time.Time
	ClosedAt         *time.Time
}

// PerformanceRecord is a resolved market's realized outcome, used to drive
// the calibration feedback loop. There is at most one per market: pnl is
// nil when the market resolved without ever having an open trade, and
// simulated_pnl is the P&L the recommendation would have realized at its
// suggested wager, present even when nothing was actually traded.
type PerformanceRecord struct {
	ID               string
	MarketID         string
	RecommendationID *string
	PredictedProb    float64
	MarketPrice      float64
	Outcome          float64
	BrierScore       float64
	PnL              *float64
	SimulatedPnL     *float64
	Category         string
	Confidence       string
	RecordedAt       time.Time
}

// CostLogEntry records the dollar cost of a single LLM call.
type CostLogEntry struct {
	ID            string
	MarketID      *string
	Model         string
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
	CreatedAt     time.Time
}

// TradeSyncLog records one run of the trade reconciler against a venue.
type TradeSyncLog struct {
	ID            string
	Platform      string
	Status        string
	TradesFound   int
	TradesCreated int
	TradesUpdated int
	TradesSkipped int
	ErrorMessage  *string
	StartedAt     time.Time
	CompletedAt   *time.Time
}
