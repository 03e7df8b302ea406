package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"augurbot/internal/config"
	"augurbot/internal/logger"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// maxPauseTurns bounds the pause_turn continuation loop so a model that
// never stops searching can't pin a call open indefinitely.
const maxPauseTurns = 6

// Researcher is the blind probability estimator. It owns its own HTTP
// client, rate limiter, and concurrency cap so a scan fanning out many
// estimates at once can't overrun the Anthropic API's rate limits.
type Researcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	cfg     *config.Config
}

// NewResearcher builds a Researcher against the given API key and config.
// The limiter defaults to 4 requests/second, matched to Anthropic's
// typical per-organization rate tier; the semaphore caps in-flight calls at
// 5 so a scan's concurrent estimate fan-out stays bounded.
func NewResearcher(apiKey string, cfg *config.Config) *Researcher {
	client := resty.New().
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetHeader("content-type", "application/json").
		SetTimeout(120 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(4 * time.Second)

	return &Researcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(4), 4),
		sem:     semaphore.NewWeighted(5),
		cfg:     cfg,
	}
}

// SelectModel picks the model to use for a market: a manual override wins
// outright, then a high-value model kicks in once volume clears the
// configured threshold, otherwise the default model is used.
func (r *Researcher) SelectModel(volume float64, manualOverride string) string {
	if manualOverride != "" {
		return manualOverride
	}
	if r.cfg.UsePremiumModel || volume >= r.cfg.HighValueVolumeThresh {
		return r.cfg.HighValueModel
	}
	return r.cfg.DefaultModel
}

type messageBlock struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Input   any    `json:"input,omitempty"`
	Content any    `json:"content,omitempty"`
}

type messagesRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    []systemBlock  `json:"system"`
	Messages  []chatMessage  `json:"messages"`
	Tools     []toolSpec     `json:"tools"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string         `json:"role"`
	Content []messageBlock `json:"content"`
}

type toolSpec struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

type messagesResponse struct {
	Content    []messageBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Estimate produces a blind probability estimate for in, selecting a model
// based on volume and any manual override. It loops on stop_reason ==
// "pause_turn" (the model pausing a long web-search session) by replaying
// the accumulated assistant content back in, until the model actually
// stops or maxPauseTurns is hit.
func (r *Researcher) Estimate(ctx context.Context, in BlindInput, volume float64, manualOverride string) (*Estimate, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	model := r.SelectModel(volume, manualOverride)

	req := messagesRequest{
		Model:     model,
		MaxTokens: 4096,
		System: []systemBlock{
			{Type: "text", Text: systemPrompt, CacheControl: &cacheControl{Type: "ephemeral"}},
		},
		Messages: []chatMessage{
			{Role: "user", Content: []messageBlock{{Type: "text", Text: BuildUserPrompt(in)}}},
		},
		Tools: []toolSpec{
			{Type: "web_search_20250305", Name: "web_search", MaxUses: r.cfg.WebSearchMaxUses},
		},
	}

	var totalInput, totalOutput int
	var finalText string

	for turn := 0; turn < maxPauseTurns; turn++ {
		var resp messagesResponse
		httpResp, err := r.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&resp).
			Post(anthropicMessagesURL)
		if err != nil {
			return nil, fmt.Errorf("anthropic request: %w", err)
		}
		if httpResp.IsError() {
			return nil, fmt.Errorf("anthropic request failed: status %d: %s", httpResp.StatusCode(), httpResp.String())
		}

		totalInput += resp.Usage.InputTokens
		totalOutput += resp.Usage.OutputTokens

		for _, block := range resp.Content {
			if block.Type == "text" {
				finalText += block.Text
			}
		}

		if resp.StopReason != "pause_turn" {
			break
		}

		logger.Info("LLM", "pause_turn received, continuing web-search session")
		req.Messages = append(req.Messages, chatMessage{Role: "assistant", Content: resp.Content})
	}

	estimate, err := parseEstimate(finalText)
	if err != nil {
		return nil, fmt.Errorf("parse estimate: %w", err)
	}

	estimate.Model = model
	estimate.InputTokens = totalInput
	estimate.OutputTokens = totalOutput
	estimate.EstimatedCost = estimateCost(r.cfg, model, totalInput, totalOutput)

	return estimate, nil
}

const screenSystemPrompt = `You triage prediction-market questions for a research pipeline that is
expensive to run. Given a question, its resolution criteria, and close
date (never its price), answer with exactly one word: YES if the question
is specific and resolvable enough to be worth deep research, NO if it is
too vague, already effectively decided, or not something web research
could meaningfully inform.`

type screenResponse struct {
	Content []messageBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Screen runs the cheap pre-screen pass: "is this market worth a full,
// expensive research call?" It sees exactly the same blind fields the full
// estimate does, never price or volume. On any failure it fails open
// (returns true) so a transient triage error never silently drops a market
// from the pipeline.
func (r *Researcher) Screen(ctx context.Context, in BlindInput) bool {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return true
	}
	defer r.sem.Release(1)
	if err := r.limiter.Wait(ctx); err != nil {
		return true
	}

	req := messagesRequest{
		Model:     r.cfg.PreScreenModel,
		MaxTokens: 8,
		System: []systemBlock{
			{Type: "text", Text: screenSystemPrompt, CacheControl: &cacheControl{Type: "ephemeral"}},
		},
		Messages: []chatMessage{
			{Role: "user", Content: []messageBlock{{Type: "text", Text: BuildUserPrompt(in)}}},
		},
	}

	var resp screenResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(anthropicMessagesURL)
	if err != nil || httpResp.IsError() {
		logger.Warn("LLM", fmt.Sprintf("pre-screen call failed, failing open: %v", err))
		return true
	}

	var text string
	for _, b := range resp.Content {
		text += b.Text
	}
	return strings.Contains(strings.ToUpper(text), "YES")
}

func estimateCost(cfg *config.Config, model string, inputTokens, outputTokens int) float64 {
	c, ok := cfg.ModelCosts[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*c.InputPerMillion + float64(outputTokens)/1_000_000*c.OutputPerMillion
}
