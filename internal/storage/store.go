package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	schedulesBucket = []byte("schedules")
	usageBucket     = []byte("usage")
	postsBucket     = []byte("posts")
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

// NewStoreWithTimeout opens the database, waiting at most timeout for the
// file lock held by another process.
func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{schedulesBucket, usageBucket, postsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func getSchedule(tx *bolt.Tx, identity string) (*ScheduleRecord, error) {
	data := tx.Bucket(schedulesBucket).Get([]byte(identity))
	if data == nil {
		return nil, fmt.Errorf("schedule %s: %w", identity, ErrNotFound)
	}
	var rec ScheduleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding schedule %s: %w", identity, err)
	}
	if rec.Fulfilled == nil {
		rec.Fulfilled = make(map[string][]string)
	}
	return &rec, nil
}

func putSchedule(tx *bolt.Tx, rec *ScheduleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(schedulesBucket).Put([]byte(rec.Identity), data)
}

func (s *Store) GetSchedule(identity string) (*ScheduleRecord, error) {
	var rec *ScheduleRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var getErr error
		rec, getErr = getSchedule(tx, identity)
		return getErr
	})
	return rec, err
}

func (s *Store) SaveSchedule(rec *ScheduleRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putSchedule(tx, rec)
	})
}

// UpdateSchedule loads, mutates and writes an identity's record in a single
// transaction. fn receives a fresh record with exists=false when nothing is
// stored yet. Returning an error from fn aborts the write.
func (s *Store) UpdateSchedule(identity string, fn func(rec *ScheduleRecord, exists bool) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getSchedule(tx, identity)
		exists := true
		if errors.Is(err, ErrNotFound) {
			rec = &ScheduleRecord{Identity: identity, Fulfilled: make(map[string][]string)}
			exists = false
		} else if err != nil {
			return err
		}
		if err := fn(rec, exists); err != nil {
			return err
		}
		rec.Identity = identity
		return putSchedule(tx, rec)
	})
}

func (s *Store) AllSchedules() ([]*ScheduleRecord, error) {
	var records []*ScheduleRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(schedulesBucket).ForEach(func(_ []byte, v []byte) error {
			var rec ScheduleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
			return nil
		})
	})
	return records, err
}

// IsUsed reports whether key is recorded in the identity's usage bucket.
func (s *Store) IsUsed(identity, key string) (bool, error) {
	var used bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(usageBucket).Bucket([]byte(identity))
		if b == nil {
			return nil
		}
		used = b.Get([]byte(key)) != nil
		return nil
	})
	return used, err
}

// MarkUsed records keys for identity with the given time. Existing keys keep
// their original timestamp.
func (s *Store) MarkUsed(identity string, at time.Time, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	stamp := []byte(at.UTC().Format(time.RFC3339Nano))
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(usageBucket).CreateBucketIfNotExists([]byte(identity))
		if err != nil {
			return err
		}
		for _, key := range keys {
			if b.Get([]byte(key)) != nil {
				continue
			}
			if err := b.Put([]byte(key), stamp); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetUsage forgets everything identity has used.
func (s *Store) ResetUsage(identity string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(usageBucket).DeleteBucket([]byte(identity))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (s *Store) UsageCount(identity string) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(usageBucket).Bucket([]byte(identity))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) SavePost(post *PostRecord) error {
	if post.ID == "" {
		return errors.New("post record needs an ID")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(post)
		if err != nil {
			return err
		}
		return tx.Bucket(postsBucket).Put([]byte(post.ID), data)
	})
}

func (s *Store) GetPost(id string) (*PostRecord, error) {
	var post PostRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(postsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPosts returns posts for identity (all identities when empty), newest
// first, at most limit when limit > 0.
func (s *Store) GetPosts(identity string, limit int) ([]*PostRecord, error) {
	var posts []*PostRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(postsBucket).ForEach(func(_ []byte, v []byte) error {
			var post PostRecord
			if err := json.Unmarshal(v, &post); err != nil {
				return nil
			}
			if identity == "" || post.Identity == identity {
				posts = append(posts, &post)
			}
			return nil
		})
	})
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].PublishedAt.After(posts[j].PublishedAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, err
}
