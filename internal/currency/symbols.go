package currency

import "strings"

// Supported lists the currency codes this system understands. KZT first:
// it is the default primary currency.
var Supported = []string{"KZT", "RUB", "USD", "EUR", "CNY", "KRW", "TRY", "MYR"}

// symbolCodes maps currency symbols to codes, checked in order.
var symbolCodes = []struct {
	symbol string
	code   string
}{
	{"₸", "KZT"},
	{"₽", "RUB"},
	{"$", "USD"},
	{"€", "EUR"},
	{"¥", "CNY"},
	{"₩", "KRW"},
	{"₺", "TRY"},
}

// wordCodes maps currency words (Russian, Kazakh, English, common
// abbreviations) to codes. Keys are lowercase; matching is per token, as
// Go's regexp \b does not understand Cyrillic word boundaries.
var wordCodes = map[string]string{
	"тенге":    "KZT",
	"теңге":    "KZT",
	"тг":       "KZT",
	"kzt":      "KZT",
	"tenge":    "KZT",
	"руб":      "RUB",
	"рубль":    "RUB",
	"рубля":    "RUB",
	"рублей":   "RUB",
	"rub":      "RUB",
	"долл":     "USD",
	"доллар":   "USD",
	"доллара":  "USD",
	"долларов": "USD",
	"usd":      "USD",
	"евро":     "EUR",
	"eur":      "EUR",
	"юань":     "CNY",
	"юаня":     "CNY",
	"юаней":    "CNY",
	"cny":      "CNY",
	"вон":      "KRW",
	"krw":      "KRW",
	"лира":     "TRY",
	"лиры":     "TRY",
	"лир":      "TRY",
	"ринггит":  "MYR",
	"rm":       "MYR",
	"myr":      "MYR",
}

// IsSupported reports whether code is one of the supported currencies.
func IsSupported(code string) bool {
	for _, c := range Supported {
		if c == code {
			return true
		}
	}
	return false
}

// Detect finds a currency symbol or word in free text and returns its
// code, or "" when nothing matches.
func Detect(text string) string {
	for _, sc := range symbolCodes {
		if strings.Contains(text, sc.symbol) {
			return sc.code
		}
	}
	for _, tok := range tokens(text) {
		if code, ok := wordCodes[tok]; ok {
			return code
		}
	}
	return ""
}

// StripTokens removes currency symbols and words from text so the field
// parser sees only the amount and description.
func StripTokens(text string) string {
	for _, sc := range symbolCodes {
		text = strings.ReplaceAll(text, sc.symbol, " ")
	}
	var kept []string
	for _, field := range strings.Fields(text) {
		if _, ok := wordCodes[normalizeToken(field)]; ok {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

func tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, normalizeToken(f))
	}
	return out
}

func normalizeToken(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,;:!?()\"'«»")
}
