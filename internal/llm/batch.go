package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"augurbot/internal/logger"
)

// ErrBatchTimeout is returned when a batch job doesn't reach a terminal
// state before the configured timeout. The caller (the orchestrator) is
// expected to fall back to per-item synchronous estimation for whatever
// didn't come back.
var ErrBatchTimeout = errors.New("llm: batch timed out")

// BatchItem pairs a caller-supplied identifier with the blind input and
// volume used for model selection.
type BatchItem struct {
	CustomID string
	Input    BlindInput
	Volume   float64
}

type batchRequestEntry struct {
	CustomID string          `json:"custom_id"`
	Params   messagesRequest `json:"params"`
}

type createBatchRequest struct {
	Requests []batchRequestEntry `json:"requests"`
}

type createBatchResponse struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"`
}

type batchStatusResponse struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"` // "in_progress" | "canceling" | "ended"
	ResultsURL       string `json:"results_url"`
	RequestCounts    struct {
		Processing int `json:"processing"`
		Succeeded  int `json:"succeeded"`
		Errored    int `json:"errored"`
		Canceled   int `json:"canceled"`
		Expired    int `json:"expired"`
	} `json:"request_counts"`
}

type batchResultLine struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type    string `json:"type"` // "succeeded" | "errored" | "canceled" | "expired"
		Message struct {
			Content []messageBlock `json:"content"`
			Usage   struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		} `json:"message"`
	} `json:"result"`
}

// batchTierDiscount is the roughly 50% per-token discount the Anthropic
// Message Batches API grants relative to synchronous pricing.
const batchTierDiscount = 0.5

// EstimateBatch submits every item as a single Anthropic Message Batch,
// polls until it ends (or times out), and parses each succeeded entry the
// same way a synchronous Estimate response is parsed, applying batch-tier
// pricing. Entries that errored, expired, or were never reached come back
// as a nil *Estimate with a non-nil error at that index so the orchestrator
// can fall back to synchronous estimation for exactly those markets.
func (r *Researcher) EstimateBatch(ctx context.Context, items []BatchItem) ([]*Estimate, []error) {
	results := make([]*Estimate, len(items))
	errs := make([]error, len(items))
	for i := range errs {
		errs[i] = fmt.Errorf("batch: no result received")
	}

	batchID, err := r.submitBatch(ctx, items)
	if err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("submit batch: %w", err)
		}
		return results, errs
	}

	status, pollErr := r.pollBatch(ctx, batchID)
	if pollErr != nil {
		for i := range errs {
			errs[i] = pollErr
		}
		return results, errs
	}

	lines, err := r.fetchBatchResults(ctx, status.ResultsURL)
	if err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("fetch batch results: %w", err)
		}
		return results, errs
	}

	byCustomID := make(map[string]batchResultLine, len(lines))
	for _, l := range lines {
		byCustomID[l.CustomID] = l
	}

	models := make(map[string]string, len(items))
	for _, item := range items {
		models[item.CustomID] = r.SelectModel(item.Volume, "")
	}

	for i, item := range items {
		line, ok := byCustomID[item.CustomID]
		if !ok {
			errs[i] = fmt.Errorf("batch: custom_id %s not present in results", item.CustomID)
			continue
		}
		if line.Result.Type != "succeeded" {
			errs[i] = fmt.Errorf("batch: custom_id %s ended %s", item.CustomID, line.Result.Type)
			continue
		}

		var text string
		for _, b := range line.Result.Message.Content {
			text += b.Text
		}
		est, err := parseEstimate(text)
		if err != nil {
			errs[i] = fmt.Errorf("batch: parse %s: %w", item.CustomID, err)
			continue
		}

		model := models[item.CustomID]
		est.Model = model
		est.InputTokens = line.Result.Message.Usage.InputTokens
		est.OutputTokens = line.Result.Message.Usage.OutputTokens
		est.EstimatedCost = estimateCost(r.cfg, model, est.InputTokens, est.OutputTokens) * batchTierDiscount

		results[i] = est
		errs[i] = nil
	}

	return results, errs
}

func (r *Researcher) submitBatch(ctx context.Context, items []BatchItem) (string, error) {
	entries := make([]batchRequestEntry, 0, len(items))
	for _, item := range items {
		model := r.SelectModel(item.Volume, "")
		entries = append(entries, batchRequestEntry{
			CustomID: item.CustomID,
			Params: messagesRequest{
				Model:     model,
				MaxTokens: 4096,
				System: []systemBlock{
					{Type: "text", Text: systemPrompt, CacheControl: &cacheControl{Type: "ephemeral"}},
				},
				Messages: []chatMessage{
					{Role: "user", Content: []messageBlock{{Type: "text", Text: BuildUserPrompt(item.Input)}}},
				},
				Tools: []toolSpec{
					{Type: "web_search_20250305", Name: "web_search", MaxUses: r.cfg.WebSearchMaxUses},
				},
			},
		})
	}

	var resp createBatchResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetBody(createBatchRequest{Requests: entries}).
		SetResult(&resp).
		Post(anthropicMessagesURL + "/batches")
	if err != nil {
		return "", err
	}
	if httpResp.IsError() {
		return "", fmt.Errorf("create batch failed: status %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	return resp.ID, nil
}

// pollBatch polls the batch's processing status every cfg.BatchPollSeconds
// until it ends or cfg.BatchTimeoutSeconds elapses. On timeout it attempts
// to cancel the batch at the provider before returning ErrBatchTimeout.
func (r *Researcher) pollBatch(ctx context.Context, batchID string) (*batchStatusResponse, error) {
	deadline := time.Now().Add(time.Duration(r.cfg.BatchTimeoutSeconds * float64(time.Second)))
	interval := time.Duration(r.cfg.BatchPollSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 15 * time.Second
	}

	for {
		var status batchStatusResponse
		httpResp, err := r.client.R().
			SetContext(ctx).
			SetResult(&status).
			Get(anthropicMessagesURL + "/batches/" + batchID)
		if err != nil {
			return nil, fmt.Errorf("poll batch: %w", err)
		}
		if httpResp.IsError() {
			return nil, fmt.Errorf("poll batch failed: status %d: %s", httpResp.StatusCode(), httpResp.String())
		}

		if status.ProcessingStatus == "ended" {
			return &status, nil
		}

		if time.Now().After(deadline) {
			logger.Warn("LLM", fmt.Sprintf("batch %s timed out, cancelling", batchID))
			_, _ = r.client.R().SetContext(ctx).Post(anthropicMessagesURL + "/batches/" + batchID + "/cancel")
			return nil, ErrBatchTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (r *Researcher) fetchBatchResults(ctx context.Context, resultsURL string) ([]batchResultLine, error) {
	if resultsURL == "" {
		return nil, fmt.Errorf("batch ended with no results_url")
	}
	httpResp, err := r.client.R().SetContext(ctx).Get(resultsURL)
	if err != nil {
		return nil, err
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("fetch results failed: status %d", httpResp.StatusCode())
	}

	var lines []batchResultLine
	scanner := bufio.NewScanner(strings.NewReader(httpResp.String()))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var l batchResultLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			continue
		}
		lines = append(lines, l)
	}
	return lines, scanner.Err()
}
