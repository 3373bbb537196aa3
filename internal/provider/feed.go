package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/lensbot/internal/validation"
)

var imgTagRegex = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

// Feed turns an RSS or Atom photo feed into a provider. Paging is not
// supported by feeds, so page is ignored.
type Feed struct {
	name           string
	searchTemplate string
	listingURL     string
	client         *Client
	parser         *gofeed.Parser
}

// NewFeed builds a feed provider. searchTemplate carries a {query}
// placeholder; without it, Search filters the listing by keyword.
func NewFeed(name, searchTemplate, listingURL string, client *Client) *Feed {
	return &Feed{
		name:           name,
		searchTemplate: searchTemplate,
		listingURL:     listingURL,
		client:         client,
		parser:         gofeed.NewParser(),
	}
}

func (f *Feed) Name() string { return f.name }

func (f *Feed) Search(ctx context.Context, query string, perPage, _ int) Result {
	if f.searchTemplate != "" {
		return f.fetch(ctx, validation.ExpandTemplate(f.searchTemplate, query), "", perPage)
	}
	return f.fetch(ctx, f.listingURL, query, perPage)
}

func (f *Feed) Listing(ctx context.Context, query string, perPage, _ int) Result {
	if f.listingURL != "" {
		return f.fetch(ctx, f.listingURL, "", perPage)
	}
	return f.fetch(ctx, validation.ExpandTemplate(f.searchTemplate, query), "", perPage)
}

func (f *Feed) fetch(ctx context.Context, rawURL, keyword string, limit int) Result {
	header := http.Header{}
	header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	body, res := f.client.getBody(ctx, rawURL, header)
	if !res.OK() {
		return res
	}
	defer body.Close()

	parsed, err := f.parser.Parse(body)
	if err != nil {
		return transient(fmt.Errorf("parsing feed: %w", err))
	}

	keyword = strings.ToLower(strings.TrimSpace(keyword))
	var out []Candidate
	for _, item := range parsed.Items {
		if keyword != "" && !itemMatches(item, keyword) {
			continue
		}
		images := extractImageURLs(item)
		if len(images) == 0 {
			continue
		}
		out = append(out, f.candidate(item, images[0]))
	}

	out = f.client.keepValid(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return success(out)
}

func (f *Feed) candidate(item *gofeed.Item, asset string) Candidate {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		id = asset
	}
	// GUIDs are often full URLs; hash them into a compact, stable key.
	sum := sha1.Sum([]byte(id))

	desc := strings.TrimSpace(item.Title)
	if desc == "" {
		desc = stripTags(item.Description)
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	return Candidate{
		Provider:     f.name,
		ID:           hex.EncodeToString(sum[:8]),
		URL:          asset,
		Description:  desc,
		Photographer: author,
		PageURL:      item.Link,
	}
}

func itemMatches(item *gofeed.Item, keyword string) bool {
	haystack := strings.ToLower(item.Title + " " + item.Description + " " + strings.Join(item.Categories, " "))
	return strings.Contains(haystack, keyword)
}

// extractImageURLs collects image enclosures, the item image and inline
// <img> tags, in that order.
func extractImageURLs(item *gofeed.Item) []string {
	var urls []string

	for _, enclosure := range item.Enclosures {
		if enclosure.URL != "" && (enclosure.Type == "" || strings.HasPrefix(enclosure.Type, "image/")) {
			urls = append(urls, enclosure.URL)
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		urls = append(urls, item.Image.URL)
	}

	for _, match := range imgTagRegex.FindAllStringSubmatch(item.Content+" "+item.Description, -1) {
		if len(match) > 1 {
			urls = append(urls, match[1])
		}
	}

	seen := make(map[string]bool, len(urls))
	unique := urls[:0]
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique
}

var tagRegex = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagRegex.ReplaceAllString(s, ""))
}
