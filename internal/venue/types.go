// Package venue implements the exchange adapter for Kalshi, the sole
// trading venue this pipeline targets.
package venue

import (
	"regexp"
	"strings"
	"time"
)

// Market is a venue-native market listing, normalized into the shape the
// rest of the pipeline expects.
type Market struct {
	PlatformID         string
	Question           string
	Subtitle           string
	Description        string
	ResolutionCriteria string
	Category           string
	SportType          string
	PriceYes           float64
	Volume             float64
	Liquidity          float64
	CloseDate          time.Time
	Status             string
}

// Resolution is the outcome of a closed or settled market.
type Resolution struct {
	PlatformID string
	Status     string // "resolved" or "cancelled"
	Outcome    string // "yes" or "no", empty when cancelled
}

// Fill is a single executed trade reported by the venue's fills endpoint.
type Fill struct {
	FillID     string
	PlatformID string
	Side       string // "yes" or "no"
	Count      int
	PriceCents int
	CreatedAt  time.Time
}

// Position is a venue-reported open position.
type Position struct {
	PlatformID string
	Side       string
	Count      int
}

// Order describes a new order to place.
type Order struct {
	PlatformID string
	Side       string // "yes" or "no"
	Count      int
	PriceCents int
	Action     string // "buy" or "sell"
}

// seriesPrefix pairs a Kalshi series-ticker prefix with the label it maps
// to. Tables are matched longest-prefix-first so a longer entry is tried
// before any shorter entry it begins with.
type seriesPrefix struct {
	prefix string
	label  string
}

// sportSeriesPrefixes maps series-ticker prefixes to a sport label. Sorted
// longest-prefix-first by sortPrefixesDesc at init time.
var sportSeriesPrefixes = []seriesPrefix{
	{"NBA", "basketball"},
	{"NCAAB", "college basketball"},
	{"NCAAF", "college football"},
	{"NFL", "football"},
	{"MLB", "baseball"},
	{"NHL", "hockey"},
	{"UCL", "soccer"},
	{"EPL", "soccer"},
	{"SOCCER", "soccer"},
	{"ATP", "tennis"},
	{"WTA", "tennis"},
	{"TENNIS", "tennis"},
	{"PGA", "golf"},
	{"GOLF", "golf"},
	{"UFC", "mma"},
	{"MMA", "mma"},
	{"BOXING", "boxing"},
}

// econSeriesPrefixes maps series-ticker prefixes to an economics category.
// The label is unused (economics has no sub-type field) but kept for
// symmetry with sportSeriesPrefixes.
var econSeriesPrefixes = []seriesPrefix{
	{"GDP", "gdp"},
	{"CPI", "cpi"},
	{"FED", "fed rate"},
	{"FOMC", "fed rate"},
	{"UNRATE", "unemployment"},
	{"JOBS", "unemployment"},
	{"PCE", "inflation"},
	{"RETAIL", "retail sales"},
}

// categoryKeywords maps a lowercase substring of a market title to a
// category label, used as a fallback once the series-ticker prefix tables
// miss, since Kalshi markets carry a free-text title but no stable
// category enum of their own.
var categoryKeywords = map[string]string{
	"fed":          "economics",
	"inflation":    "economics",
	"gdp":          "economics",
	"unemployment": "economics",
	"election":     "politics",
	"president":    "politics",
	"senate":       "politics",
	"congress":     "politics",
	"nfl":          "sports",
	"nba":          "sports",
	"mlb":          "sports",
	"nhl":          "sports",
	"super bowl":   "sports",
	"world cup":    "sports",
	"olympics":     "sports",
	"ai":           "technology",
	"openai":       "technology",
	"spacex":       "technology",
}

var sportKeywords = map[string]string{
	"nfl": "football",
	"nba": "basketball",
	"mlb": "baseball",
	"nhl": "hockey",
}

// rejectKeywords is a hard reject list: titles matching any of these are
// never classified as sports/economics regardless of other signals, since
// they're reliably false positives for the series-prefix and "X vs Y"
// fallback heuristics (weather tickers often carry city-vs-city framing,
// entertainment awards read like head-to-head matchups).
var rejectKeywords = []string{
	"temperature", "hurricane", "snowfall", "rainfall", "weather",
	"bitcoin", "btc", "ethereum", "eth", "crypto",
	"billboard", "grammy", "oscar", "emmy", "vma",
}

func init() {
	sortPrefixesDesc(sportSeriesPrefixes)
	sortPrefixesDesc(econSeriesPrefixes)
}

func sortPrefixesDesc(prefixes []seriesPrefix) {
	for i := 1; i < len(prefixes); i++ {
		for j := i; j > 0 && len(prefixes[j].prefix) > len(prefixes[j-1].prefix); j-- {
			prefixes[j], prefixes[j-1] = prefixes[j-1], prefixes[j]
		}
	}
}

// seriesPrefixFromTicker derives a series-ticker prefix from an
// event_ticker's first dash-segment, e.g. "NBA-25JAN01LALBOS" -> "NBA".
// Falls back to the market ticker itself when no event ticker is given.
func seriesPrefixFromTicker(eventTicker, ticker string) string {
	source := eventTicker
	if source == "" {
		source = ticker
	}
	if source == "" {
		return ""
	}
	if idx := strings.Index(source, "-"); idx >= 0 {
		source = source[:idx]
	}
	return strings.ToUpper(source)
}

// vsPattern matches a generic "X vs Y" / "X vs. Y" head-to-head title, the
// last-resort fallback for identifying a sports matchup whose series
// prefix and keywords are both unrecognized.
var vsPattern = regexp.MustCompile(`(?i)\b\S+\s+vs\.?\s+\S+`)

func isRejected(lowerTitle string) bool {
	for _, kw := range rejectKeywords {
		if strings.Contains(lowerTitle, kw) {
			return true
		}
	}
	return false
}

// detectCategory classifies a market into a category and, when it's a
// sports market, a sport label. It tries, in order: the hard reject list,
// the series-ticker prefix tables (longest prefix first), a keyword match
// against the title/subtitle, and finally the "X vs Y" matchup pattern.
// Anything left unmatched falls back to "other".
func detectCategory(title, subtitle, eventTicker, ticker string) (category, sport string) {
	lowerTitle := strings.ToLower(title)
	lowerSubtitle := strings.ToLower(subtitle)
	combined := lowerTitle + " " + lowerSubtitle

	if isRejected(combined) {
		return "other", ""
	}

	prefix := seriesPrefixFromTicker(eventTicker, ticker)
	if prefix != "" {
		for _, sp := range sportSeriesPrefixes {
			if strings.HasPrefix(prefix, sp.prefix) {
				return "sports", sp.label
			}
		}
		for _, ep := range econSeriesPrefixes {
			if strings.HasPrefix(prefix, ep.prefix) {
				return "economics", ""
			}
		}
	}

	for kw, cat := range categoryKeywords {
		if strings.Contains(combined, kw) {
			return cat, sportKeywords[kw]
		}
	}

	if vsPattern.MatchString(title) {
		return "sports", ""
	}

	return "other", ""
}
