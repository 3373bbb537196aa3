package provider

import (
	"fmt"

	"github.com/pders01/lensbot/internal/config"
	"github.com/pders01/lensbot/internal/health"
)

// Registry holds the configured providers and their static weights.
type Registry struct {
	providers map[string]Provider
	weights   map[string]float64
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		weights:   make(map[string]float64),
	}
}

// Register adds p with weight. Names must be unique.
func (r *Registry) Register(p Provider, weight float64) error {
	if _, dup := r.providers[p.Name()]; dup {
		return fmt.Errorf("provider %q registered twice", p.Name())
	}
	r.providers[p.Name()] = p
	r.weights[p.Name()] = weight
	r.order = append(r.order, p.Name())
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Weight(name string) float64 {
	return r.weights[name]
}

// HealthMembers describes the registry for a health.Registry.
func (r *Registry) HealthMembers() []health.Provider {
	out := make([]health.Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, health.Provider{Name: name, Weight: r.weights[name]})
	}
	return out
}

// FromConfig builds every configured provider.
func FromConfig(cfgs []config.ProviderConfig, network config.NetworkConfig) (*Registry, error) {
	r := NewRegistry()
	for _, pc := range cfgs {
		p, err := build(pc, network)
		if err != nil {
			return nil, err
		}
		if err := r.Register(p, pc.Weight); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func build(pc config.ProviderConfig, network config.NetworkConfig) (Provider, error) {
	opts := ClientOptions{
		Timeout:         pc.HTTPTimeout,
		UserAgent:       network.UserAgent,
		RequestsPerHour: pc.RequestsPerHour,
	}

	switch pc.Kind {
	case config.KindUnsplash:
		opts.RateLimitStatus = UnsplashRateLimitStatus
		return NewUnsplash(pc.Name, pc.BaseURL, pc.APIKey, NewClient(opts)), nil
	case config.KindPexels:
		opts.RateLimitStatus = PexelsRateLimitStatus
		return NewPexels(pc.Name, pc.BaseURL, pc.APIKey, NewClient(opts)), nil
	case config.KindFeed:
		opts.RateLimitStatus = []int{429}
		return NewFeed(pc.Name, pc.SearchURL, pc.ListingURL, NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", pc.Name, pc.Kind)
	}
}
