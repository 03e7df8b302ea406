package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

type rawFill struct {
	FillID    string `json:"fill_id"`
	Ticker    string `json:"ticker"`
	Side      string `json:"side"`
	Count     int    `json:"count"`
	YesPrice  int    `json:"yes_price"`
	NoPrice   int    `json:"no_price"`
	CreatedAt string `json:"created_time"`
}

type fillsResponse struct {
	Fills  []rawFill `json:"fills"`
	Cursor string    `json:"cursor"`
}

// FetchFills pages through every fill the venue reports, starting from the
// first page on each call, used by the trade reconciler to detect
// executions the local trade log hasn't seen yet.
func (c *Client) FetchFills(ctx context.Context) ([]Fill, error) {
	var out []Fill
	cursor := ""

	for {
		q := url.Values{}
		q.Set("limit", "200")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		data, err := c.do(ctx, "GET", "/portfolio/fills?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("fetch fills: %w", err)
		}
		var page fillsResponse
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decode fills page: %w", err)
		}
		for _, f := range page.Fills {
			price := f.YesPrice
			if f.Side == "no" {
				price = f.NoPrice
			}
			out = append(out, Fill{
				FillID:     f.FillID,
				PlatformID: f.Ticker,
				Side:       f.Side,
				Count:      f.Count,
				PriceCents: price,
				CreatedAt:  parseKalshiTime(f.CreatedAt),
			})
		}
		if page.Cursor == "" || len(page.Fills) == 0 {
			break
		}
		cursor = page.Cursor
	}
	return out, nil
}

type rawPosition struct {
	Ticker   string `json:"ticker"`
	Position int    `json:"position"` // positive = yes, negative = no
}

// FetchPositions returns every currently held position.
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	data, err := c.do(ctx, "GET", "/portfolio/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	var resp struct {
		MarketPositions []rawPosition `json:"market_positions"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	var out []Position
	for _, p := range resp.MarketPositions {
		if p.Position == 0 {
			continue
		}
		side := "yes"
		count := p.Position
		if count < 0 {
			side = "no"
			count = -count
		}
		out = append(out, Position{PlatformID: p.Ticker, Side: side, Count: count})
	}
	return out, nil
}

type rawOrder struct {
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
}

// VenueOrder is a resting or terminal order as reported by the venue.
type VenueOrder struct {
	OrderID    string
	PlatformID string
	Status     string // "resting", "executed", "canceled", ...
}

// FetchOrders returns every resting or recently filled order, optionally
// filtered to a single status ("" fetches every status the venue returns).
func (c *Client) FetchOrders(ctx context.Context, status string) ([]VenueOrder, error) {
	path := "/portfolio/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	data, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	var resp struct {
		Orders []rawOrder `json:"orders"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]VenueOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, VenueOrder{OrderID: o.OrderID, PlatformID: o.Ticker, Status: o.Status})
	}
	return out, nil
}

// FetchCanceledOrderIDs returns the order ids of every order the venue
// reports as canceled, used to detect our own auto-placed orders that were
// cancelled (e.g. for insufficient balance or a venue-side expiry) rather
// than filled.
func (c *Client) FetchCanceledOrderIDs(ctx context.Context) ([]string, error) {
	orders, err := c.FetchOrders(ctx, "canceled")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	return ids, nil
}

// PlaceOrder submits a new order against a market. Returns the venue's
// order id on success.
func (c *Client) PlaceOrder(ctx context.Context, o Order) (string, error) {
	payload := map[string]interface{}{
		"ticker":      o.PlatformID,
		"side":        o.Side,
		"action":      o.Action,
		"count":       o.Count,
		"type":        "limit",
		"client_order_id": fmt.Sprintf("augurbot-%d", time.Now().UnixNano()),
	}
	if o.Side == "yes" {
		payload["yes_price"] = o.PriceCents
	} else {
		payload["no_price"] = o.PriceCents
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	data, err := c.postJSON(ctx, "/portfolio/orders", body)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}

	var resp struct {
		Order rawOrder `json:"order"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	return resp.Order.OrderID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, "POST", path, bytes.NewReader(body))
}
