package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a calibrated forecaster. You are given a prediction market
question along with its resolution criteria and close date, but never its
current price or trading volume — you must reason from first principles
and publicly available information, not from what a market implies.

Use web search to find relevant, recent, and credible information before
answering. Then respond with a single JSON object (inside a fenced
` + "```json" + ` block) with exactly these fields:

{
  "reasoning": "<your reasoning, 2-4 paragraphs>",
  "probability": <float between 0.01 and 0.99, your estimate that the market resolves YES>,
  "confidence": "<high|medium|low>",
  "key_evidence": ["<short bullet>", ...],
  "key_uncertainties": ["<short bullet>", ...]
}

Calibrate confidence honestly: "high" means you would be surprised to be
wrong, "low" means this is close to a coin flip or evidence is thin.`

// BuildUserPrompt renders the blind input (and any accumulated calibration
// feedback) into the single user-turn message sent to the model. Only the
// fields listed here ever reach the model — no price, volume, or platform
// identifiers.
func BuildUserPrompt(in BlindInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", in.Question)
	if in.ResolutionCriteria != "" {
		fmt.Fprintf(&b, "Resolution criteria: %s\n", in.ResolutionCriteria)
	}
	if in.CloseDate != "" {
		fmt.Fprintf(&b, "Closes: %s\n", in.CloseDate)
	}
	if in.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", in.Category)
	}
	if in.SportType != "" {
		fmt.Fprintf(&b, "Sport: %s\n", in.SportType)
	}
	if in.CalibrationFeedback != "" {
		fmt.Fprintf(&b, "\nYour recent calibration on similar questions:\n%s\n", in.CalibrationFeedback)
	}
	return b.String()
}
