package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// UnsplashRateLimitStatus are the codes Unsplash uses to signal quota exhaustion.
var UnsplashRateLimitStatus = []int{http.StatusForbidden, http.StatusTooManyRequests}

// unsplashMaxRandom is the API's cap on /photos/random?count.
const unsplashMaxRandom = 30

type Unsplash struct {
	name    string
	baseURL string
	apiKey  string
	client  *Client
}

func NewUnsplash(name, baseURL, apiKey string, client *Client) *Unsplash {
	return &Unsplash{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type unsplashPhoto struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	AltDescription string `json:"alt_description"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Color          string `json:"color"`
	URLs           struct {
		Regular string `json:"regular"`
		Full    string `json:"full"`
	} `json:"urls"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	Links struct {
		HTML string `json:"html"`
	} `json:"links"`
}

func (u *Unsplash) Name() string { return u.name }

func (u *Unsplash) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Client-ID "+u.apiKey)
	h.Set("Accept-Version", "v1")
	return h
}

func (u *Unsplash) Search(ctx context.Context, query string, perPage, page int) Result {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	var body struct {
		Results []unsplashPhoto `json:"results"`
	}
	if res := u.client.getJSON(ctx, u.baseURL+"/search/photos?"+q.Encode(), u.header(), &body); !res.OK() {
		return res
	}
	return success(u.client.keepValid(u.candidates(body.Results)))
}

// Listing uses /photos/random, which honors query as a loose filter.
func (u *Unsplash) Listing(ctx context.Context, query string, perPage, _ int) Result {
	count := perPage
	if count > unsplashMaxRandom {
		count = unsplashMaxRandom
	}
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	if query != "" {
		q.Set("query", query)
	}

	var photos []unsplashPhoto
	if res := u.client.getJSON(ctx, u.baseURL+"/photos/random?"+q.Encode(), u.header(), &photos); !res.OK() {
		return res
	}
	return success(u.client.keepValid(u.candidates(photos)))
}

func (u *Unsplash) candidates(photos []unsplashPhoto) []Candidate {
	out := make([]Candidate, 0, len(photos))
	for _, p := range photos {
		desc := p.Description
		if desc == "" {
			desc = p.AltDescription
		}
		asset := p.URLs.Regular
		if asset == "" {
			asset = p.URLs.Full
		}
		out = append(out, Candidate{
			Provider:     u.name,
			ID:           p.ID,
			URL:          asset,
			Description:  desc,
			Width:        p.Width,
			Height:       p.Height,
			Color:        p.Color,
			Photographer: p.User.Name,
			PageURL:      p.Links.HTML,
		})
	}
	return out
}
