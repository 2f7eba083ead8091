package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurbolat/kassa/internal/currency"
)

// StrategyParser is the strategy name recorded when the deterministic
// parser ran directly over a text candidate.
const StrategyParser = "parser"

// Markers that precede the grand total on receipts, in Russian, Kazakh
// and English.
var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:итого|итог|барлығы|жалпы|всего|сумма|к оплате|төлеуге|total|to pay|amount due)[:\s]*([0-9][0-9 ]*(?:[.,][0-9]{1,2})?)`),
	regexp.MustCompile(`([0-9][0-9 ]*(?:[.,][0-9]{1,2})?)\s*(?:₸|₽|\$|€|тг)`),
}

// Caption grammar for plain chat messages: "500 кофе",
// "потратил 500 на кофе", "жұмсадым 500 кофе". Anchored to the whole
// string, so multi-line OCR output never matches.
var captionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^потратил[аи]?\s+([0-9]+(?:[.,][0-9]{1,2})?)\s+на\s+(.+)$`),
	regexp.MustCompile(`(?i)^жұмсадым\s+([0-9]+(?:[.,][0-9]{1,2})?)\s+(.+)$`),
	regexp.MustCompile(`^([0-9]+(?:[.,][0-9]{1,2})?)\s*(.*)$`),
}

var bareNumberPattern = regexp.MustCompile(`[0-9]+(?:[.,][0-9]{1,2})?`)

var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), "2006-01-02"},
	{regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`), "2.1.2006"},
	{regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`), "2/1/2006"},
	{regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{2})\b`), "2.1.06"},
}

var (
	todayWords     = []string{"сегодня", "бүгін", "today"}
	yesterdayWords = []string{"вчера", "кеше", "yesterday"}
)

// Legal-form prefixes that mark a merchant name on post-Soviet receipts
// (ООО/ИП for Russia, ТОО/ЖШС for Kazakhstan).
var merchantMarker = regexp.MustCompile(`(?i)(?:ооо|ип|тоо|жшс|ао)\s+["«']?([\p{L}\p{N} .\-]{3,60})`)

// Parse runs the deterministic field parser over raw receipt or chat
// text. It never fails; absence of a usable amount shows up as a
// non-positive Amount with zero confidence.
func Parse(text string, now time.Time) *Fields {
	f := &Fields{Strategy: StrategyParser}
	text = strings.TrimSpace(text)
	if text == "" {
		return f
	}

	f.Currency = currency.Detect(text)
	if f.Currency != "" {
		f.Confidence.Currency = 1.0
	}

	rest := stripCurrencyTokens(text)

	// Chat-style captions carry the description inline with the amount.
	if amount, desc, ok := parseCaption(rest); ok {
		f.Amount = amount
		f.Confidence.Amount = 0.9
		if d, conf, remainder := parseDate(desc, now); conf > 0 {
			f.Date = d
			f.Confidence.Date = conf
			desc = remainder
		}
		f.Description = strings.TrimSpace(desc)
	} else {
		flat := strings.Join(strings.Fields(text), " ")
		f.Amount, f.Confidence.Amount = parseTotal(flat)
		if d, conf, _ := parseDate(flat, now); conf > 0 {
			f.Date = d
			f.Confidence.Date = conf
		}
		f.Merchant, f.Confidence.Merchant = parseMerchant(text)
	}

	f.Confidence.Overall = overallConfidence(f)
	return f
}

func parseCaption(text string) (decimal.Decimal, string, bool) {
	for _, re := range captionPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := parseAmount(m[1])
		if err != nil || !amount.IsPositive() {
			continue
		}
		desc := ""
		if len(m) > 2 {
			desc = strings.TrimSpace(m[2])
		}
		return amount, desc, true
	}
	return decimal.Zero, "", false
}

// parseTotal finds the grand total in receipt text: marker-prefixed
// amounts first, then the largest plausible bare number as a last
// resort. Receipts list item prices too, so the largest match wins.
func parseTotal(flat string) (decimal.Decimal, float64) {
	best := decimal.Zero
	for _, re := range totalPatterns {
		for _, m := range re.FindAllStringSubmatch(flat, -1) {
			amount, err := parseAmount(m[1])
			if err != nil {
				continue
			}
			if amount.GreaterThan(best) {
				best = amount
			}
		}
	}
	if best.IsPositive() {
		return best, 0.9
	}

	lower := decimal.NewFromInt(10)
	upper := decimal.NewFromInt(10_000_000)
	for _, m := range bareNumberPattern.FindAllString(flat, -1) {
		amount, err := parseAmount(m)
		if err != nil {
			continue
		}
		if amount.GreaterThanOrEqual(lower) && amount.LessThanOrEqual(upper) && amount.GreaterThan(best) {
			best = amount
		}
	}
	if best.IsPositive() {
		return best, 0.6
	}
	return decimal.Zero, 0
}

// parseAmount normalizes "1 000,50" style strings into a decimal with
// at most two fractional digits.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(2), nil
}

// parseDate extracts an explicit or relative date, returning the
// remaining text with the date token removed. Future dates are ignored:
// a receipt cannot be from tomorrow.
func parseDate(text string, now time.Time) (time.Time, float64, string) {
	lower := strings.ToLower(text)
	for _, w := range todayWords {
		if strings.Contains(lower, w) {
			return now, 0.7, removeWord(text, w)
		}
	}
	for _, w := range yesterdayWords {
		if strings.Contains(lower, w) {
			return now.AddDate(0, 0, -1), 0.7, removeWord(text, w)
		}
	}
	for _, p := range datePatterns {
		m := p.re.FindString(text)
		if m == "" {
			continue
		}
		d, err := time.Parse(p.layout, m)
		if err != nil {
			continue
		}
		if d.After(now) {
			continue
		}
		return d, 0.9, strings.TrimSpace(strings.Replace(text, m, "", 1))
	}
	return time.Time{}, 0, text
}

func removeWord(text, word string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return strings.TrimSpace(strings.Join(strings.Fields(re.ReplaceAllString(text, "")), " "))
}

// parseMerchant guesses the merchant from a legal-form marker or, failing
// that, from the first header-looking line of the receipt.
func parseMerchant(text string) (string, float64) {
	if m := merchantMarker.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(strings.Trim(m[1], `"«»'`))
		if len(name) > 3 {
			return clipMerchant(name), 0.9
		}
	}

	lines := strings.Split(text, "\n")
	limit := 5
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if len(line) < 5 || len(line) > 100 {
			continue
		}
		runes := []rune(line)
		if !isUpperLetter(runes[0]) {
			continue
		}
		if bareNumberPattern.MatchString(line) && len(bareNumberPattern.FindString(line)) > len(line)/2 {
			continue
		}
		return clipMerchant(line), 0.6
	}
	return "", 0
}

func clipMerchant(s string) string {
	runes := []rune(s)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return s
}

func isUpperLetter(r rune) bool {
	return strings.ToLower(string(r)) != string(r)
}

func stripCurrencyTokens(text string) string {
	return currency.StripTokens(text)
}

// overallConfidence mirrors the completeness weights of the parser:
// the amount dominates, date and merchant each add a fifth, a detected
// non-default currency tops it off.
func overallConfidence(f *Fields) float64 {
	c := 0.0
	if f.HasAmount() {
		c += 0.5
	}
	if !f.Date.IsZero() {
		c += 0.2
	}
	if f.Merchant != "" || f.Description != "" {
		c += 0.2
	}
	if f.Currency != "" {
		c += 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}
