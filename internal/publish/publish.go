// Package publish submits finished posts to the publishing backend.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"

	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/provider"
)

var (
	// ErrRejected means the backend answered but did not accept the post.
	ErrRejected = errors.New("post rejected by backend")
	// ErrUnavailable means the circuit breaker is open and no request was sent.
	ErrUnavailable = errors.New("publishing backend unavailable")
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultPath    = "/api/bot/create-post"
)

// Identity is the persona a post is published under.
type Identity struct {
	Username    string
	DisplayName string
	Avatar      string
	Bio         string
	BotType     string
	Folder      string
}

// Post is one submission.
type Post struct {
	Identity  Identity
	Content   string
	Topic     string
	Candidate provider.Candidate
}

// Receipt describes an accepted post.
type Receipt struct {
	// ID is the backend's identifier, when it returned one.
	ID             string
	IdempotencyKey string
	StatusCode     int
}

// Publisher submits posts. A nil error means the backend confirmed the post.
type Publisher interface {
	Publish(ctx context.Context, post Post) (Receipt, error)
}

// HTTPOptions configures an HTTPPublisher.
type HTTPOptions struct {
	BaseURL string
	Path    string
	APIKey  string
	Timeout time.Duration
	// BreakerFailures out of BreakerWindow consecutive executions open the
	// breaker for BreakerDelay.
	BreakerFailures int
	BreakerWindow   int
	BreakerDelay    time.Duration
	HTTPClient      *http.Client
}

// HTTPPublisher POSTs posts as JSON. Requests are never retried: the
// backend is not assumed to deduplicate.
type HTTPPublisher struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	breaker  circuitbreaker.CircuitBreaker[*http.Response]
	executor failsafe.Executor[*http.Response]
}

func NewHTTPPublisher(opts HTTPOptions) *HTTPPublisher {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerWindow <= 0 {
		opts.BreakerWindow = 5
	}
	if opts.BreakerFailures <= 0 || opts.BreakerFailures > opts.BreakerWindow {
		opts.BreakerFailures = min(3, opts.BreakerWindow)
	}
	if opts.BreakerDelay <= 0 {
		opts.BreakerDelay = 5 * time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= 500)
		}).
		WithFailureThresholdRatio(uint(opts.BreakerFailures), uint(opts.BreakerWindow)).
		WithDelay(opts.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			debuglog.WithFields(debuglog.Fields{
				"from": fmt.Sprint(event.OldState),
				"to":   fmt.Sprint(event.NewState),
			}).Warnf("publisher circuit breaker state change")
		}).
		Build()

	return &HTTPPublisher{
		endpoint: strings.TrimRight(opts.BaseURL, "/") + opts.Path,
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		client:   client,
		breaker:  breaker,
		executor: failsafe.With[*http.Response](breaker),
	}
}

type botMetadata struct {
	BotType      string `json:"botType"`
	Source       string `json:"source"`
	Theme        string `json:"theme"`
	Photographer string `json:"photographer,omitempty"`
	ID           string `json:"id"`
	PageURL      string `json:"pageUrl,omitempty"`
}

type createPostRequest struct {
	BotUsername      string      `json:"botUsername"`
	DisplayName      string      `json:"displayName"`
	Avatar           string      `json:"avatar,omitempty"`
	Bio              string      `json:"bio,omitempty"`
	IsBot            bool        `json:"isBot"`
	BotMetadata      botMetadata `json:"botMetadata"`
	Content          string      `json:"content"`
	ImageURL         string      `json:"imageUrl"`
	ImageURLs        []string    `json:"imageUrls"`
	CloudinaryFolder string      `json:"cloudinaryFolder,omitempty"`
}

type createPostResponse struct {
	ID   string `json:"id"`
	Post struct {
		ID string `json:"_id"`
	} `json:"post"`
}

func newRequestBody(post Post) createPostRequest {
	return createPostRequest{
		BotUsername: post.Identity.Username,
		DisplayName: post.Identity.DisplayName,
		Avatar:      post.Identity.Avatar,
		Bio:         post.Identity.Bio,
		IsBot:       true,
		BotMetadata: botMetadata{
			BotType:      post.Identity.BotType,
			Source:       post.Candidate.Provider,
			Theme:        post.Topic,
			Photographer: post.Candidate.Photographer,
			ID:           post.Candidate.ID,
			PageURL:      post.Candidate.PageURL,
		},
		Content:          post.Content,
		ImageURL:         post.Candidate.URL,
		ImageURLs:        []string{post.Candidate.URL},
		CloudinaryFolder: post.Identity.Folder,
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, post Post) (Receipt, error) {
	body, err := json.Marshal(newRequestBody(post))
	if err != nil {
		return Receipt{}, fmt.Errorf("encoding post: %w", err)
	}
	receipt := Receipt{IdempotencyKey: uuid.NewString()}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", receipt.IdempotencyKey)
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		return p.client.Do(req)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return receipt, ErrUnavailable
	}
	if err != nil {
		return receipt, fmt.Errorf("posting to backend: %w", err)
	}
	defer resp.Body.Close()

	receipt.StatusCode = resp.StatusCode
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return receipt, fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, snippet(data))
	}

	var parsed createPostResponse
	if json.Unmarshal(data, &parsed) == nil {
		receipt.ID = parsed.ID
		if receipt.ID == "" {
			receipt.ID = parsed.Post.ID
		}
	}
	return receipt, nil
}

// BreakerOpen reports whether publishing is currently short-circuited.
func (p *HTTPPublisher) BreakerOpen() bool {
	return p.breaker.IsOpen()
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
