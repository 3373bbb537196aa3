package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// PexelsRateLimitStatus are the codes Pexels uses to signal quota exhaustion.
var PexelsRateLimitStatus = []int{http.StatusTooManyRequests}

type Pexels struct {
	name    string
	baseURL string
	apiKey  string
	client  *Client
}

func NewPexels(name, baseURL, apiKey string, client *Client) *Pexels {
	return &Pexels{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type pexelsPhoto struct {
	ID           int64  `json:"id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	URL          string `json:"url"`
	Photographer string `json:"photographer"`
	AvgColor     string `json:"avg_color"`
	Alt          string `json:"alt"`
	Src          struct {
		Original string `json:"original"`
		Large    string `json:"large"`
	} `json:"src"`
}

type pexelsPage struct {
	Photos []pexelsPhoto `json:"photos"`
}

func (p *Pexels) Name() string { return p.name }

func (p *Pexels) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", p.apiKey)
	return h
}

func (p *Pexels) Search(ctx context.Context, query string, perPage, page int) Result {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return p.fetch(ctx, p.baseURL+"/search?"+q.Encode())
}

// Listing serves the curated feed. Query is ignored.
func (p *Pexels) Listing(ctx context.Context, _ string, perPage, page int) Result {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return p.fetch(ctx, p.baseURL+"/curated?"+q.Encode())
}

func (p *Pexels) fetch(ctx context.Context, rawURL string) Result {
	var body pexelsPage
	if res := p.client.getJSON(ctx, rawURL, p.header(), &body); !res.OK() {
		return res
	}

	out := make([]Candidate, 0, len(body.Photos))
	for _, ph := range body.Photos {
		asset := ph.Src.Large
		if asset == "" {
			asset = ph.Src.Original
		}
		out = append(out, Candidate{
			Provider:     p.name,
			ID:           strconv.FormatInt(ph.ID, 10),
			URL:          asset,
			Description:  ph.Alt,
			Width:        ph.Width,
			Height:       ph.Height,
			Color:        ph.AvgColor,
			Photographer: ph.Photographer,
			PageURL:      ph.URL,
		})
	}
	return success(p.client.keepValid(out))
}
