// Package provider defines the media provider contract and its Unsplash,
// Pexels and RSS/Atom implementations.
package provider

import (
	"context"
	"time"
)

// Candidate is one photo offered by a provider.
type Candidate struct {
	Provider     string `json:"provider"`
	ID           string `json:"id"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Color        string `json:"color,omitempty"`
	Photographer string `json:"photographer,omitempty"`
	PageURL      string `json:"page_url,omitempty"`
}

// Key identifies a candidate across providers.
func (c Candidate) Key() string {
	return c.Provider + ":" + c.ID
}

// FailureKind classifies why a provider call returned no content.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureTransient covers network errors, 5xx and malformed payloads.
	FailureTransient
	// FailureRateLimited means the provider told us to back off.
	FailureRateLimited
	// FailureThrottled means the local quota denied the call before any
	// request was sent.
	FailureThrottled
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransient:
		return "transient"
	case FailureRateLimited:
		return "rate_limited"
	case FailureThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one provider call. Failure is FailureNone on
// success, in which case Candidates may still be empty.
type Result struct {
	Candidates []Candidate
	Failure    FailureKind
	Err        error
	// RetryAfter is the provider's requested wait, when it sent one.
	RetryAfter time.Duration
}

func (r Result) OK() bool {
	return r.Failure == FailureNone
}

func success(cs []Candidate) Result {
	return Result{Candidates: cs}
}

func transient(err error) Result {
	return Result{Failure: FailureTransient, Err: err}
}

// Provider is a source of candidates. Implementations never panic on remote
// errors; they classify them in the Result.
type Provider interface {
	Name() string
	// Search returns candidates matching query.
	Search(ctx context.Context, query string, perPage, page int) Result
	// Listing is the fallback method: a random or curated listing that may
	// ignore query.
	Listing(ctx context.Context, query string, perPage, page int) Result
}
