// Package textproc normalizes raw tweet text into the canonical token
// sequence consumed by the embedding model.
package textproc

import (
	"regexp"
	"strings"
)

var (
	nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_]`)
	digitRe   = regexp.MustCompile(`\p{Nd}`)
)

// stopwords mixes English and Danish, matching the vocabulary the deployed
// models were trained against.
var stopwords = map[string]struct{}{}

func init() {
	words := []string{
		"har", "they", "those", "through", "each", "as", "being", "blive", "why", "thi", "her", "how",
		"this", "shouldn", "won", "nor", "most", "too", "os", "does", "blev", "didn't", "hasn't",
		"it's", "det", "mustn", "into", "further", "du", "have", "o", "på", "være", "shan't", "are",
		"of", "don't", "off", "doesn", "sine", "han", "dog", "theirs", "yourself", "until", "needn",
		"også", "themselves", "mustn't", "needn't", "hans", "som", "you're", "from", "both", "here",
		"their", "its", "few", "din", "man", "jeg", "it", "and", "til", "anden", "hasn", "shan", "i",
		"has", "alt", "end", "up", "noget", "on", "there", "own", "more", "above", "deres", "at",
		"mine", "you've", "herself", "below", "all", "isn", "you'd", "itself", "where", "we", "wasn",
		"ain", "such", "while", "but", "been", "whom", "couldn", "skal", "you'll", "yours", "de",
		"against", "in", "ma", "og", "during", "what", "which", "mod", "wasn't", "him", "because",
		"his", "himself", "a", "just", "over", "kunne", "s", "mange", "my", "had", "should've",
		"couldn't", "en", "an", "these", "er", "nu", "should", "fra", "wouldn", "ikke", "op", "ud",
		"når", "disse", "myself", "efter", "weren", "af", "don", "nogle", "only", "for", "sådan",
		"hvad", "that", "ll", "ad", "who", "hvis", "having", "y", "hun", "can", "doesn't", "down",
		"your", "was", "isn't", "mightn", "wouldn't", "m", "to", "sig", "hos", "same", "he", "about",
		"vil", "aren't", "med", "dette", "yourselves", "you", "so", "jo", "sin", "them", "aren",
		"that'll", "været", "or", "the", "den", "after", "when", "havde", "ham", "before", "mit",
		"some", "ourselves", "min", "denne", "me", "again", "no", "hadn", "selv", "skulle", "doing",
		"hadn't", "dig", "if", "did", "ind", "var", "other", "once", "haven", "ville", "jer", "ve",
		"re", "now", "weren't", "dem", "be", "any", "mightn't", "do", "is", "with", "won't", "hers",
		"ours", "der", "et", "under", "men", "da", "hendes", "she's", "vi", "hende", "out", "then",
		"hvor", "vor", "bliver", "not", "alle", "d", "by", "between", "were", "than", "didn", "sit",
		"ned", "mig", "will", "our", "haven't", "she", "am", "t", "meget", "om", "eller", "shouldn't",
		"very",
	}
	for _, w := range words {
		stopwords[w] = struct{}{}
	}
}

// Preprocess lowercases the text, replaces punctuation and digits with
// spaces, collapses whitespace, and drops stopword tokens. It never fails;
// empty input yields the empty string.
func Preprocess(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(text)
	text = nonWordRe.ReplaceAllString(text, " ")
	text = digitRe.ReplaceAllString(text, " ")

	tokens := strings.Fields(text)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, skip := stopwords[tok]; !skip {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
