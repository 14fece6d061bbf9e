package us

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	htmlTagRe  = regexp.MustCompile(`<[^>]*>`)
	htmlParaRe = regexp.MustCompile(`(?i)</?p[^>]*>|<br\s*/?>`)
)

// StripHTML removes tags, unescapes entities and collapses whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// ExtractSymbolContent keeps the paragraphs that mention symbol. It falls
// back to the whole stripped text when none do.
func ExtractSymbolContent(rawHTML, symbol string) string {
	var matched []string
	upper := strings.ToUpper(symbol)
	for _, chunk := range htmlParaRe.Split(rawHTML, -1) {
		plain := StripHTML(chunk)
		if plain != "" && strings.Contains(strings.ToUpper(plain), upper) {
			matched = append(matched, plain)
		}
	}
	if len(matched) > 0 {
		return strings.Join(matched, " ")
	}
	return StripHTML(rawHTML)
}

// Financial news polarity words. Stems are matched by prefix so that
// "upgrade", "upgraded" and "upgrades" share one entry.
var (
	positiveStems = []string{
		"beat", "surg", "soar", "jump", "rall", "gain", "rise", "rising", "record",
		"upgrad", "outperform", "bullish", "strong", "growth", "profit", "exceed",
		"boost", "rebound", "raise", "raising", "optimis", "buyback", "expan",
		"accelerat", "tops", "winn", "approv",
	}
	negativeStems = []string{
		"misse", "plung", "plummet", "tumbl", "slump", "drop", "fall", "fell", "declin",
		"downgrad", "underperform", "bearish", "weak", "loss", "lawsuit", "probe",
		"recall", "cut", "layoff", "bankrupt", "fraud", "warn", "slow", "pessimis",
		"halt", "delay", "sued", "investigat",
	}
	negators = map[string]struct{}{
		"not": {}, "no": {}, "never": {}, "without": {}, "despite": {},
	}
)

// lexiconScore returns the polarity of text in [-1, 1] and the number of
// polarity words found. A negator directly before a word flips it.
func lexiconScore(text string) (polarity float64, hits int) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	var pos, neg int
	for i, w := range words {
		sign := 0
		switch {
		case hasStem(w, positiveStems):
			sign = 1
		case hasStem(w, negativeStems):
			sign = -1
		default:
			continue
		}
		if i > 0 {
			if _, ok := negators[words[i-1]]; ok {
				sign = -sign
			}
		}
		if sign > 0 {
			pos++
		} else {
			neg++
		}
	}
	hits = pos + neg
	if hits == 0 {
		return 0, 0
	}
	return float64(pos-neg) / float64(hits), hits
}

func hasStem(word string, stems []string) bool {
	for _, s := range stems {
		if strings.HasPrefix(word, s) {
			return true
		}
	}
	return false
}

// ArticleScore is the polarity of one news article.
type ArticleScore struct {
	Polarity   float64
	Confidence float64
}

// ScoreArticle scores a headline and body. The headline counts twice.
// Confidence grows with the number of polarity words and saturates at four.
func ScoreArticle(headline, body string) ArticleScore {
	p, hits := lexiconScore(headline + " " + headline + " " + body)
	return ArticleScore{
		Polarity:   p,
		Confidence: min(1, float64(hits)/4),
	}
}
