package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"augurbot/internal/logger"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type rawEstimate struct {
	Reasoning        string   `json:"reasoning"`
	Probability      float64  `json:"probability"`
	Confidence       string   `json:"confidence"`
	KeyEvidence      []string `json:"key_evidence"`
	KeyUncertainties []string `json:"key_uncertainties"`
}

// extractJSON pulls the estimate object out of the model's free-form
// response, preferring a fenced ```json block and falling back to the
// outermost brace-delimited span in the text.
func extractJSON(text string) (string, error) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// parseEstimate extracts and validates the estimate JSON, clamping
// probability into [0.01, 0.99] and normalizing confidence case-insensitively
// with a "medium" fallback when the model returns something unrecognized.
func parseEstimate(text string) (*Estimate, error) {
	jsonStr, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw rawEstimate
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("decode estimate JSON: %w", err)
	}

	prob := raw.Probability
	if prob < 0.01 {
		prob = 0.01
	}
	if prob > 0.99 {
		prob = 0.99
	}

	confidence := ConfidenceMedium
	switch strings.ToLower(strings.TrimSpace(raw.Confidence)) {
	case "high":
		confidence = ConfidenceHigh
	case "medium":
		confidence = ConfidenceMedium
	case "low":
		confidence = ConfidenceLow
	default:
		logger.Warn("LLM", fmt.Sprintf("unrecognized confidence %q, defaulting to medium", raw.Confidence))
	}

	return &Estimate{
		Reasoning:        raw.Reasoning,
		Probability:      prob,
		Confidence:       confidence,
		KeyEvidence:      raw.KeyEvidence,
		KeyUncertainties: raw.KeyUncertainties,
	}, nil
}
