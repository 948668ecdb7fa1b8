package newsapi

import (
	"sort"
	"strings"
	"unicode"

	"NewsDigest/internal/domain"
)

// DefaultMinRelevance keeps almost everything the provider matched.
const DefaultMinRelevance = 0.1

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "his": {}, "how": {}, "its": {},
	"may": {}, "new": {}, "now": {}, "old": {}, "see": {}, "two": {}, "who": {},
	"did": {}, "get": {}, "him": {}, "she": {}, "too": {}, "use": {}, "that": {},
	"with": {}, "this": {}, "from": {}, "they": {}, "been": {}, "were": {},
	"what": {}, "when": {}, "will": {}, "would": {}, "there": {}, "their": {},
	"about": {}, "which": {}, "into": {}, "than": {}, "then": {}, "them": {},
	"these": {}, "those": {}, "while": {}, "where": {}, "after": {}, "over": {},
}

var suffixes = []string{"ational", "ization", "ations", "ation", "ings", "ing", "ness", "ment", "edly", "ies", "ied", "es", "ed", "ly", "s"}

// Keywords lowercases text, drops non-letters, stop words and short tokens, and
// reduces the rest to crude stems.
func Keywords(text string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, text)

	out := map[string]struct{}{}
	for _, token := range strings.Fields(cleaned) {
		if len([]rune(token)) <= 2 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		out[stem(token)] = struct{}{}
	}
	return out
}

func stem(word string) string {
	for _, suffix := range suffixes {
		if strings.HasSuffix(word, suffix) && len(word)-len(suffix) >= 3 {
			return strings.TrimSuffix(word, suffix)
		}
	}
	return word
}

// Relevance scores an article against a topic in [0, 1]. Every article starts at 0.2;
// keyword overlap, topic words in the text and topic words in the title add to it.
func Relevance(article domain.Article, topic string) float64 {
	topicKeywords := Keywords(topic)
	if len(topicKeywords) == 0 {
		return 0.5
	}

	title := strings.ToLower(article.Title)
	text := title + " " + strings.ToLower(article.Description) + " " + strings.ToLower(article.RawContent)
	articleKeywords := Keywords(text)
	if len(articleKeywords) == 0 {
		return 0.3
	}

	common := 0
	for keyword := range topicKeywords {
		if _, ok := articleKeywords[keyword]; ok {
			common++
		}
	}
	score := 0.2 + float64(common)/float64(len(topicKeywords))

	for _, word := range strings.Fields(strings.ToLower(topic)) {
		if len([]rune(word)) <= 1 {
			continue
		}
		if strings.Contains(text, word) {
			score += 0.2
		}
		if strings.Contains(title, word) {
			score += 0.3
		}
	}

	return min(score, 1.0)
}

// FilterRelevant keeps articles scoring at least minScore, most relevant first.
func FilterRelevant(articles []domain.Article, topic string, minScore float64) []domain.Article {
	type scored struct {
		article domain.Article
		score   float64
	}

	kept := make([]scored, 0, len(articles))
	for _, article := range articles {
		if score := Relevance(article, topic); score >= minScore {
			kept = append(kept, scored{article: article, score: score})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	out := make([]domain.Article, 0, len(kept))
	for _, s := range kept {
		out = append(out, s.article)
	}
	return out
}
