package storage

import (
	"slices"
	"time"
)

// ScheduleRecord is the persisted posting state of one identity. Fulfilled
// maps a local date (2006-01-02) to the slot labels already posted that day.
type ScheduleRecord struct {
	Identity    string              `json:"identity"`
	Slots       []string            `json:"slots"`
	Timezone    string              `json:"timezone"`
	Fulfilled   map[string][]string `json:"last_post_dates"`
	TotalPosts  int                 `json:"total_posts"`
	LastUpdated time.Time           `json:"last_updated"`
}

// HasPosted reports whether label was fulfilled on date.
func (r *ScheduleRecord) HasPosted(date, label string) bool {
	return slices.Contains(r.Fulfilled[date], label)
}

// AddPost records label on date. It returns false if the label was
// already present, leaving the record untouched.
func (r *ScheduleRecord) AddPost(date, label string) bool {
	if r.HasPosted(date, label) {
		return false
	}
	if r.Fulfilled == nil {
		r.Fulfilled = make(map[string][]string)
	}
	r.Fulfilled[date] = append(r.Fulfilled[date], label)
	return true
}

// PostsOn returns how many slots were fulfilled on date.
func (r *ScheduleRecord) PostsOn(date string) int {
	return len(r.Fulfilled[date])
}

// PostRecord is one confirmed publish.
type PostRecord struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	Date         string    `json:"date"`
	Slot         string    `json:"slot"`
	Topic        string    `json:"topic"`
	Provider     string    `json:"provider"`
	ContentID    string    `json:"content_id"`
	AssetURL     string    `json:"asset_url"`
	Photographer string    `json:"photographer"`
	Caption      string    `json:"caption"`
	BackendID    string    `json:"backend_id,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}
