package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/lensbot/internal/provider"
)

func testPost() Post {
	return Post{
		Identity: Identity{
			Username:    "jay_soundo_photography",
			DisplayName: "Jay Soundo Photography",
			BotType:     "photographer",
			Folder:      "bots/jay",
		},
		Content: "Fog over the valley #landscape",
		Topic:   "landscape",
		Candidate: provider.Candidate{
			Provider:     "pexels",
			ID:           "101",
			URL:          "https://images.pexels.com/101.jpg",
			Photographer: "Cam",
		},
	}
}

func TestHTTPPublisher_Success(t *testing.T) {
	type captured struct {
		body   map[string]any
		key    string
		auth   string
		path   string
		method string
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- captured{body, r.Header.Get("Idempotency-Key"), r.Header.Get("Authorization"), r.URL.Path, r.Method}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"post":{"_id":"p-123"}}`))
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(HTTPOptions{BaseURL: srv.URL + "/", APIKey: "tok"})
	receipt, err := pub.Publish(context.Background(), testPost())
	require.NoError(t, err)

	c := <-got
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/api/bot/create-post", c.path)
	assert.Equal(t, "Bearer tok", c.auth)
	_, parseErr := uuid.Parse(c.key)
	assert.NoError(t, parseErr)
	assert.Equal(t, c.key, receipt.IdempotencyKey)
	assert.Equal(t, "p-123", receipt.ID)
	assert.Equal(t, http.StatusCreated, receipt.StatusCode)

	assert.Equal(t, "jay_soundo_photography", c.body["botUsername"])
	assert.Equal(t, true, c.body["isBot"])
	assert.Equal(t, "https://images.pexels.com/101.jpg", c.body["imageUrl"])
	assert.Equal(t, "bots/jay", c.body["cloudinaryFolder"])
	meta, ok := c.body["botMetadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pexels", meta["source"])
	assert.Equal(t, "landscape", meta["theme"])
	assert.Equal(t, "101", meta["id"])
}

func TestHTTPPublisher_NonSuccessIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(HTTPOptions{BaseURL: srv.URL})
	_, err := pub.Publish(context.Background(), testPost())
	assert.ErrorIs(t, err, ErrRejected)
}

func TestHTTPPublisher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	pub := NewHTTPPublisher(HTTPOptions{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := pub.Publish(context.Background(), testPost())

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPPublisher_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(HTTPOptions{
		BaseURL:         srv.URL,
		BreakerFailures: 2,
		BreakerWindow:   2,
		BreakerDelay:    time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := pub.Publish(context.Background(), testPost())
		assert.ErrorIs(t, err, ErrRejected)
	}
	assert.True(t, pub.BreakerOpen())

	_, err := pub.Publish(context.Background(), testPost())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker sends nothing")
}

func TestHTTPPublisher_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(HTTPOptions{BaseURL: srv.URL, BreakerFailures: 1, BreakerWindow: 1})
	for i := 0; i < 3; i++ {
		_, err := pub.Publish(context.Background(), testPost())
		assert.ErrorIs(t, err, ErrRejected)
	}
	assert.False(t, pub.BreakerOpen())
}
