package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func TestStore_SaveAndGetSchedule(t *testing.T) {
	store, _ := setupTestStore(t)

	updated := time.Date(2025, 3, 1, 9, 0, 10, 0, time.UTC)
	rec := &ScheduleRecord{
		Identity:    "jay",
		Slots:       []string{"09:00", "18:00"},
		Timezone:    "UTC",
		Fulfilled:   map[string][]string{"2025-03-01": {"09:00"}},
		TotalPosts:  1,
		LastUpdated: updated,
	}

	if err := store.SaveSchedule(rec); err != nil {
		t.Fatalf("failed to save schedule: %v", err)
	}

	got, err := store.GetSchedule("jay")
	if err != nil {
		t.Fatalf("failed to get schedule: %v", err)
	}
	if got.TotalPosts != 1 {
		t.Errorf("expected TotalPosts 1, got %d", got.TotalPosts)
	}
	if !got.HasPosted("2025-03-01", "09:00") {
		t.Error("expected 09:00 fulfilled on 2025-03-01")
	}
	if !got.LastUpdated.Equal(updated) {
		t.Errorf("expected LastUpdated %v, got %v", updated, got.LastUpdated)
	}
}

func TestStore_GetSchedule_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.GetSchedule("nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateSchedule(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.UpdateSchedule("jay", func(rec *ScheduleRecord, exists bool) error {
		if exists {
			t.Error("first update should see a fresh record")
		}
		rec.Slots = []string{"09:00"}
		rec.AddPost("2025-03-01", "09:00")
		rec.TotalPosts++
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	err = store.UpdateSchedule("jay", func(rec *ScheduleRecord, exists bool) error {
		if !exists {
			t.Error("second update should see the stored record")
		}
		if rec.AddPost("2025-03-01", "09:00") {
			t.Error("AddPost should refuse a duplicate label")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	aborted := errors.New("abort")
	err = store.UpdateSchedule("jay", func(rec *ScheduleRecord, _ bool) error {
		rec.TotalPosts = 100
		return aborted
	})
	if !errors.Is(err, aborted) {
		t.Fatalf("expected abort error, got %v", err)
	}

	got, err := store.GetSchedule("jay")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalPosts != 1 {
		t.Errorf("aborted update leaked: TotalPosts = %d", got.TotalPosts)
	}
	if got.PostsOn("2025-03-01") != 1 {
		t.Errorf("expected one post on 2025-03-01, got %d", got.PostsOn("2025-03-01"))
	}
}

func TestStore_AllSchedules(t *testing.T) {
	store, _ := setupTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveSchedule(&ScheduleRecord{Identity: id, Slots: []string{"09:00"}}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.AllSchedules()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 schedules, got %d", len(all))
	}
}

func TestStore_Usage(t *testing.T) {
	store, _ := setupTestStore(t)
	now := time.Now()

	used, err := store.IsUsed("jay", "pexels:1")
	if err != nil || used {
		t.Fatalf("fresh identity should have no usage: used=%v err=%v", used, err)
	}

	if err := store.MarkUsed("jay", now, "pexels:1", "https://img/1.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkUsed("jay", now, "pexels:1"); err != nil {
		t.Fatal(err)
	}

	used, err = store.IsUsed("jay", "pexels:1")
	if err != nil || !used {
		t.Errorf("expected pexels:1 used, got used=%v err=%v", used, err)
	}
	used, _ = store.IsUsed("other", "pexels:1")
	if used {
		t.Error("usage must be scoped per identity")
	}

	n, err := store.UsageCount("jay")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 usage keys, got %d", n)
	}

	if err := store.ResetUsage("jay"); err != nil {
		t.Fatal(err)
	}
	if err := store.ResetUsage("never-seen"); err != nil {
		t.Errorf("resetting an unknown identity should be a no-op, got %v", err)
	}
	n, _ = store.UsageCount("jay")
	if n != 0 {
		t.Errorf("expected 0 usage keys after reset, got %d", n)
	}
}

func TestStore_Posts(t *testing.T) {
	store, _ := setupTestStore(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		identity := "jay"
		if i%2 == 1 {
			identity = "kim"
		}
		post := &PostRecord{
			ID:          fmt.Sprintf("post-%d", i),
			Identity:    identity,
			Provider:    "pexels",
			ContentID:   fmt.Sprintf("%d", i),
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.SavePost(post); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.GetPosts("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 posts, got %d", len(all))
	}
	if all[0].ID != "post-4" {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	jay, err := store.GetPosts("jay", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jay) != 2 || jay[0].ID != "post-4" || jay[1].ID != "post-2" {
		t.Errorf("unexpected jay posts: %+v", jay)
	}

	got, err := store.GetPost("post-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Identity != "kim" {
		t.Errorf("expected kim, got %s", got.Identity)
	}

	if _, err := store.GetPost("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.SavePost(&PostRecord{}); err == nil {
		t.Error("expected error saving a post without ID")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkUsed("jay", time.Now(), "unsplash:abc"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSchedule(&ScheduleRecord{Identity: "jay", TotalPosts: 3}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	used, _ := reopened.IsUsed("jay", "unsplash:abc")
	if !used {
		t.Error("usage lost across reopen")
	}
	rec, err := reopened.GetSchedule("jay")
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalPosts != 3 {
		t.Errorf("expected TotalPosts 3, got %d", rec.TotalPosts)
	}
}
