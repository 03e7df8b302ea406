package notifier

import (
	"strings"
	"testing"
	"time"
)

func sampleRec() recNotification {
	return recNotification{
		Question:      "Will it rain tomorrow?",
		Direction:     "yes",
		Edge:          0.12,
		EV:            0.09,
		AIProbability: 0.62,
		MarketPrice:   0.50,
		KellyFraction: 0.04,
		PlatformID:    "RAIN-24",
	}
}

func TestFormatRecTextIncludesKeyFigures(t *testing.T) {
	got := formatRecText(sampleRec())
	for _, want := range []string{"Will it rain tomorrow?", "YES", "Edge: 12.0%", "EV: 9.0%", "AI: 62%", "Market: 50%", "Kelly: 4.0%"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected formatted text to contain %q, got: %s", want, got)
		}
	}
}

func TestFormatRecHTMLEscapesNothingButIncludesFigures(t *testing.T) {
	got := formatRecHTML(sampleRec())
	if !strings.Contains(got, "Will it rain tomorrow?") {
		t.Fatalf("expected HTML to contain the question, got: %s", got)
	}
	if !strings.Contains(got, "YES") {
		t.Fatalf("expected HTML to contain the direction, got: %s", got)
	}
}

func TestFormatSlackLinksToKalshiWhenPlatformIDPresent(t *testing.T) {
	stats := digestStats{MarketsFound: 100, MarketsResearched: 40, Duration: 90 * time.Second}
	got := formatSlack([]recNotification{sampleRec()}, stats)
	if !strings.Contains(got, "https://kalshi.com/markets/rain-24") {
		t.Fatalf("expected a lowercased market URL, got: %s", got)
	}
	if !strings.Contains(got, "1 high-EV bet found") {
		t.Fatalf("expected singular bet count phrasing, got: %s", got)
	}
}

func TestFormatSlackPluralizesMultipleRecs(t *testing.T) {
	stats := digestStats{MarketsFound: 10, MarketsResearched: 5, Duration: time.Minute}
	got := formatSlack([]recNotification{sampleRec(), sampleRec()}, stats)
	if !strings.Contains(got, "2 high-EV bets found") {
		t.Fatalf("expected plural bet count phrasing, got: %s", got)
	}
}

func TestFormatSlackOmitsLinkWhenNoPlatformID(t *testing.T) {
	rec := sampleRec()
	rec.PlatformID = ""
	stats := digestStats{MarketsFound: 1, MarketsResearched: 1, Duration: time.Second}
	got := formatSlack([]recNotification{rec}, stats)
	if strings.Contains(got, "kalshi.com/markets/") {
		t.Fatalf("expected no market link when PlatformID is empty, got: %s", got)
	}
	if !strings.Contains(got, rec.Question) {
		t.Fatalf("expected the bare question as the title, got: %s", got)
	}
}

func TestFormatEmailIncludesSubjectCountAndBlocks(t *testing.T) {
	stats := digestStats{MarketsFound: 50, MarketsResearched: 20, Duration: 3 * time.Minute}
	subject, text, html := formatEmail([]recNotification{sampleRec()}, stats)
	if !strings.Contains(subject, "1 high-EV bet found") {
		t.Fatalf("expected singular subject phrasing, got: %s", subject)
	}
	if !strings.Contains(text, "Markets found: 50") {
		t.Fatalf("expected market count in text body, got: %s", text)
	}
	if !strings.Contains(html, "Will it rain tomorrow?") {
		t.Fatalf("expected the question embedded in html body, got: %s", html)
	}
}
