package news

import "strings"

// Keyword lists for the naive headline scorer. Matching is whole-word,
// case-insensitive; the majority wins, ties are neutral.
var (
	positiveWords = []string{
		"surge", "surges", "rally", "rallies", "gain", "gains", "jump",
		"jumps", "soar", "soars", "record", "upgrade", "upgrades", "buy",
		"bullish", "profit", "beats", "strong", "high", "wins",
	}
	negativeWords = []string{
		"fall", "falls", "drop", "drops", "plunge", "plunges", "slump",
		"slumps", "loss", "losses", "downgrade", "downgrades", "sell",
		"bearish", "weak", "misses", "low", "crash", "fraud", "probe",
	}
)

// scoreSentiment classifies a headline by counting keyword hits.
func scoreSentiment(title string) string {
	words := strings.Fields(strings.ToLower(title))

	score := 0
	for _, w := range words {
		w = strings.Trim(w, ".,:;!?'\"()")
		if contains(positiveWords, w) {
			score++
		}
		if contains(negativeWords, w) {
			score--
		}
	}

	switch {
	case score > 0:
		return "positive"
	case score < 0:
		return "negative"
	default:
		return "neutral"
	}
}

func contains(list []string, w string) bool {
	for _, item := range list {
		if item == w {
			return true
		}
	}
	return false
}
