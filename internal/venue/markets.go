package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type rawMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	RulesPrimary   string  `json:"rules_primary"`
	YesAsk         int     `json:"yes_ask"`
	YesBid         int     `json:"yes_bid"`
	LastPrice      int     `json:"last_price"`
	Volume         float64 `json:"volume"`
	OpenInterest   float64 `json:"open_interest"`
	CloseTime      string  `json:"close_time"`
	ExpirationTime string  `json:"expiration_time"`
	Status         string  `json:"status"`
}

type marketsResponse struct {
	Markets []rawMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// maxMarketPages hard-caps adapter-level pagination so a misbehaving venue
// (empty cursor that never terminates, or an enormous open-market count)
// can't turn one scan into an unbounded number of requests.
const maxMarketPages = 50

// volumeWaivedCategories skip the minVolume post-filter entirely: sports
// and economics markets are the pipeline's core focus and are kept even
// when thinly traded, so the researcher still sees them.
var volumeWaivedCategories = map[string]bool{
	"sports":    true,
	"economics": true,
}

// FetchMarkets pages through every open market, applying category
// inclusion, close-window, volume, and parlay-rejection post-filters, and
// stopping once limit markets have been collected, the venue runs out of
// pages, or maxMarketPages is reached. Parlay-style multi-leg markets (no
// single yes/no resolution) are skipped, since the blind estimator only
// reasons about binary outcomes. categories, when non-empty, restricts
// results to those category labels; minCloseUnix/maxCloseUnix, when
// non-zero, bound the market's close time.
func (c *Client) FetchMarkets(ctx context.Context, limit int, minVolume float64, categories []string, minCloseUnix, maxCloseUnix int64) ([]Market, error) {
	var out []Market
	cursor := ""
	wantCategory := make(map[string]bool, len(categories))
	for _, cat := range categories {
		wantCategory[cat] = true
	}

	for page := 0; page < maxMarketPages; page++ {
		q := url.Values{}
		q.Set("status", "open")
		q.Set("limit", "200")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		data, err := c.do(ctx, "GET", "/markets?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("fetch markets: %w", err)
		}

		var resp marketsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("decode markets page: %w", err)
		}

		for _, raw := range resp.Markets {
			if isParlay(raw.Title) {
				continue
			}

			market, ok := normalizeMarket(raw)
			if !ok {
				continue
			}

			if len(wantCategory) > 0 && !wantCategory[market.Category] {
				continue
			}
			if !volumeWaivedCategories[market.Category] && market.Volume < minVolume {
				continue
			}
			if minCloseUnix > 0 && !market.CloseDate.IsZero() && market.CloseDate.Unix() < minCloseUnix {
				continue
			}
			if maxCloseUnix > 0 && !market.CloseDate.IsZero() && market.CloseDate.Unix() > maxCloseUnix {
				continue
			}

			out = append(out, market)
			if len(out) >= limit {
				return out, nil
			}
		}

		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}

	return out, nil
}

// isParlay reports whether a title describes a combinatorial multi-leg
// market with no single binary resolution: one beginning with "yes "/"no "
// (a single leg's restated outcome, not a standalone question), or a
// comma-separated list where at least two legs carry a "yes "/"no " prefix.
func isParlay(title string) bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	if strings.HasPrefix(lower, "yes ") || strings.HasPrefix(lower, "no ") {
		return true
	}

	parts := strings.Split(title, ",")
	if len(parts) < 2 {
		return false
	}
	legs := 0
	for _, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		if strings.HasPrefix(p, "yes ") || strings.HasPrefix(p, "no ") {
			legs++
		}
	}
	return legs >= 2
}

// priceYesCents resolves the YES-side price in cents from the first
// non-zero of {last_price, midpoint of bid/ask, ask, bid}. Returns ok=false
// when all four are zero, meaning the market has no usable price yet.
func priceYesCents(raw rawMarket) (cents float64, ok bool) {
	if raw.LastPrice > 0 {
		return float64(raw.LastPrice), true
	}
	if raw.YesBid > 0 && raw.YesAsk > 0 {
		return float64(raw.YesBid+raw.YesAsk) / 2, true
	}
	if raw.YesAsk > 0 {
		return float64(raw.YesAsk), true
	}
	if raw.YesBid > 0 {
		return float64(raw.YesBid), true
	}
	return 0, false
}

func normalizeMarket(raw rawMarket) (Market, bool) {
	cents, ok := priceYesCents(raw)
	if !ok {
		return Market{}, false
	}

	closeDate := parseKalshiTime(raw.CloseTime)
	if closeDate.IsZero() {
		closeDate = parseKalshiTime(raw.ExpirationTime)
	}

	category, sport := detectCategory(raw.Title, raw.Subtitle, raw.EventTicker, raw.Ticker)

	return Market{
		PlatformID:         raw.Ticker,
		Question:           raw.Title,
		Subtitle:           raw.Subtitle,
		Description:        raw.RulesPrimary,
		ResolutionCriteria: raw.RulesPrimary,
		Category:           category,
		SportType:          sport,
		PriceYes:           cents / 100.0,
		Volume:             raw.Volume,
		Liquidity:          raw.OpenInterest,
		CloseDate:          closeDate,
		Status:             raw.Status,
	}, true
}

func parseKalshiTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type rawResolution struct {
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Result         string `json:"result"`
}

// CheckResolutions fetches current status for a batch of platform ids,
// used by the resolution pass to detect markets that have settled or been
// cancelled since the last scan.
func (c *Client) CheckResolutions(ctx context.Context, platformIDs []string) ([]Resolution, error) {
	var out []Resolution
	for _, id := range platformIDs {
		data, err := c.do(ctx, "GET", "/markets/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("check resolution for %s: %w", id, err)
		}
		var wrapper struct {
			Market rawResolution `json:"market"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("decode resolution for %s: %w", id, err)
		}
		r := wrapper.Market

		switch r.Status {
		case "finalized", "settled":
			switch r.Result {
			case "yes", "no":
				out = append(out, Resolution{PlatformID: id, Status: "resolved", Outcome: r.Result})
			default:
				// A settled market with no yes/no result is void.
				out = append(out, Resolution{PlatformID: id, Status: "cancelled"})
			}
		case "voided", "cancelled":
			out = append(out, Resolution{PlatformID: id, Status: "cancelled"})
		}
	}
	return out, nil
}
