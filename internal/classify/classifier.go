package classify

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Confidence levels per match tier.
const (
	confidenceExact   = 1.0
	confidencePartial = 0.7
	confidenceNone    = 0.0
)

// Result is a category assignment with the classifier's confidence.
// Assignment is advisory until the user confirms or the pipeline commits.
type Result struct {
	Category   string
	Confidence float64
}

// Classifier assigns expense categories from merchant names and
// description text. It never fails: with no matching signal it returns
// the default "other" category with zero confidence.
type Classifier struct {
	merchants    map[string]string
	merchantKeys []string
	keywords     map[string][]string
	order        []string
}

// New creates a Classifier over the built-in lexicon. Lexicon entries
// are folded once here so they compare equal to folded input: folding
// strips combining marks, turning "й" into "и" on both sides.
func New() *Classifier {
	folded := make(map[string]string, len(merchants))
	keys := make([]string, 0, len(merchants))
	for name, cat := range merchants {
		name = fold(name)
		folded[name] = cat
		keys = append(keys, name)
	}
	// substring matching over a map would not be deterministic
	sort.Strings(keys)

	kw := make(map[string][]string, len(keywords))
	for cat, words := range keywords {
		list := make([]string, len(words))
		for i, w := range words {
			list[i] = fold(w)
		}
		kw[cat] = list
	}

	return &Classifier{
		merchants:    folded,
		merchantKeys: keys,
		keywords:     kw,
		order:        categoryOrder,
	}
}

// Classify picks a category for the expense. Match tiers, in priority
// order: exact merchant (1.0), merchant substring (0.7), description
// keyword (0.7), default "other" (0.0). Matching is case- and
// diacritic-insensitive; the lexicon spans Russian, Kazakh and English,
// so the user's language preference never changes the outcome.
func (c *Classifier) Classify(merchant, description string) Result {
	foldedMerchant := fold(merchant)

	if foldedMerchant != "" {
		if cat, ok := c.merchants[foldedMerchant]; ok {
			return Result{Category: cat, Confidence: confidenceExact}
		}
		for _, known := range c.merchantKeys {
			if strings.Contains(foldedMerchant, known) {
				return Result{Category: c.merchants[known], Confidence: confidencePartial}
			}
		}
	}

	foldedDesc := fold(description)
	if foldedDesc != "" {
		for _, cat := range c.order {
			for _, kw := range c.keywords[cat] {
				if strings.Contains(foldedDesc, kw) {
					return Result{Category: cat, Confidence: confidencePartial}
				}
			}
		}
	}

	return Result{Category: CategoryOther, Confidence: confidenceNone}
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips combining diacritical marks so "Café" and
// "cafe" compare equal.
func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		return s
	}
	return out
}
