package search

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/pders01/lensbot/internal/storage"
)

const (
	// recencyWindow is how far back the recency boost reaches.
	recencyWindow   = 7 * 24 * time.Hour
	maxRecencyBoost = 0.1
	snippetLength   = 160
)

// postField is one searchable attribute of a post.
type postField struct {
	name    string
	weight  float64
	value   func(*storage.PostRecord) string
	snippet bool
}

// postFields are scored in this order; Matches keep it.
var postFields = []postField{
	{name: "topic", weight: 4, value: func(p *storage.PostRecord) string { return p.Topic }},
	{name: "caption", weight: 3, value: func(p *storage.PostRecord) string { return p.Caption }, snippet: true},
	{name: "photographer", weight: 2, value: func(p *storage.PostRecord) string { return p.Photographer }},
	{name: "provider", weight: 0.5, value: func(p *storage.PostRecord) string { return p.Provider }},
}

// Engine searches post history by scanning the store. It needs no index
// and is used when no index path is configured.
type Engine struct {
	store PostSource
	now   func() time.Time
}

func NewEngine(store PostSource) *Engine {
	return &Engine{store: store, now: time.Now}
}

func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	return e.SearchIdentity("", query, limit)
}

// SearchIdentity scores every post of identity (all identities when
// empty) against query, best first.
func (e *Engine) SearchIdentity(identity, query string, limit int) ([]*Result, error) {
	results := []*Result{}
	if len(strings.TrimSpace(query)) < 2 {
		return results, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return results, nil
	}

	posts, err := e.store.GetPosts(identity, 0)
	if err != nil {
		return nil, err
	}

	now := e.now()
	for _, post := range posts {
		if r := scorePost(post, terms, now); r != nil {
			results = append(results, r)
		}
	}
	slices.SortStableFunc(results, func(a, b *Result) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) Close() error { return nil }

func scorePost(post *storage.PostRecord, terms []string, now time.Time) *Result {
	r := &Result{Post: post}
	for _, f := range postFields {
		text := f.value(post)
		score := scoreField(text, terms, f.weight)
		if score == 0 {
			continue
		}
		if f.snippet {
			text = bestSnippet(text, terms, snippetLength)
		}
		r.Matches = append(r.Matches, Match{Field: f.name, Text: text, Weight: score})
		r.Score += score
	}
	if r.Score == 0 {
		return nil
	}
	if !post.PublishedAt.IsZero() {
		r.Score *= 1 + calculateRecencyBoost(post.PublishedAt, now)
	}
	return r
}

// scoreField rates how well text matches terms. A whole-word hit is worth
// more than a prefix, and a prefix more than a bare substring. Hitting
// several terms and a high share of the field's words both raise the score.
func scoreField(text string, terms []string, weight float64) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(text)

	var score float64
	matched := 0
	for _, term := range terms {
		best := 0.0
		for _, w := range words {
			switch {
			case w == term:
				best = max(best, 2)
			case strings.HasPrefix(w, term):
				best = max(best, 1)
			}
		}
		if best == 0 && strings.Contains(lower, term) {
			best = 0.5
		}
		if best > 0 {
			score += best
			matched++
		}
	}
	if matched == 0 {
		return 0
	}

	if matched > 1 {
		score *= 1 + float64(matched)/float64(len(terms))
	}
	score *= 1 + math.Log1p(float64(matched)/float64(len(words)))
	return score * weight
}

// bestSnippet returns the window of text with the most term hits.
func bestSnippet(text string, terms []string, maxLength int) string {
	words := strings.Fields(text)
	window := maxLength / 8
	if len(words) <= window {
		return truncate(strings.Join(words, " "), maxLength)
	}

	hits := func(ws []string) int {
		joined := strings.ToLower(strings.Join(ws, " "))
		n := 0
		for _, t := range terms {
			if strings.Contains(joined, t) {
				n++
			}
		}
		return n
	}

	bestStart, bestHits := 0, 0
	for i := 0; i+window <= len(words); i++ {
		if h := hits(words[i : i+window]); h > bestHits {
			bestStart, bestHits = i, h
		}
	}
	return truncate(strings.Join(words[bestStart:bestStart+window], " "), maxLength)
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit. Single-byte tokens are dropped.
func tokenize(text string) []string {
	var terms []string
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(f) > 1 {
			terms = append(terms, strings.ToLower(f))
		}
	}
	return terms
}

func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}

// calculateRecencyBoost decays linearly from maxRecencyBoost for a post
// published now to zero at recencyWindow.
func calculateRecencyBoost(published, now time.Time) float64 {
	age := now.Sub(published)
	switch {
	case age <= 0:
		return maxRecencyBoost
	case age >= recencyWindow:
		return 0
	}
	return maxRecencyBoost * (1 - float64(age)/float64(recencyWindow))
}
