// Package schedule decides when an identity may post and records which
// daily slots were fulfilled. State is re-read from storage on every check
// so a restart never repeats a slot.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	_ "time/tzdata" // identities may name any IANA zone

	"github.com/jonboulle/clockwork"

	"github.com/pders01/lensbot/internal/debuglog"
	"github.com/pders01/lensbot/internal/storage"
)

const (
	SlotLayout = "15:04"
	DateLayout = "2006-01-02"

	DefaultTolerance     = time.Minute
	DefaultRetentionDays = 7
)

var (
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrDuplicateIdentity = errors.New("identity already registered")
)

// Store is the persistence the tracker needs. *storage.Store satisfies it.
type Store interface {
	GetSchedule(identity string) (*storage.ScheduleRecord, error)
	UpdateSchedule(identity string, fn func(rec *storage.ScheduleRecord, exists bool) error) error
	AllSchedules() ([]*storage.ScheduleRecord, error)
}

// Slot is one concrete occurrence of a daily slot label.
type Slot struct {
	Label string
	// Date is the local calendar date the occurrence belongs to.
	Date string
	At   time.Time
}

type identity struct {
	slots []string
	loc   *time.Location
}

type Tracker struct {
	store         Store
	clock         clockwork.Clock
	tolerance     time.Duration
	retentionDays int

	mu         sync.RWMutex
	identities map[string]identity
}

func NewTracker(store Store, clock clockwork.Clock, tolerance time.Duration, retentionDays int) *Tracker {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Tracker{
		store:         store,
		clock:         clock,
		tolerance:     tolerance,
		retentionDays: retentionDays,
		identities:    make(map[string]identity),
	}
}

// Register declares an identity's slots and time zone. Registering the
// same identity twice is a configuration error. Nothing is written until
// the identity's first slot is fulfilled.
func (t *Tracker) Register(id string, slots []string, timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("identity %s: loading time zone: %w", id, err)
	}
	if len(slots) == 0 {
		return fmt.Errorf("identity %s: no slots", id)
	}
	for _, s := range slots {
		if _, err := time.Parse(SlotLayout, s); err != nil {
			return fmt.Errorf("identity %s: slot %q: %w", id, s, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.identities[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, id)
	}
	t.identities[id] = identity{slots: append([]string(nil), slots...), loc: loc}
	return nil
}

// Identities returns registered identity IDs, sorted.
func (t *Tracker) Identities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.identities))
	for id := range t.identities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) lookup(id string) (identity, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ident, ok := t.identities[id]
	if !ok {
		return identity{}, fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	return ident, nil
}

// occurrences lists every slot for yesterday, today and tomorrow in loc.
func occurrences(now time.Time, slots []string, loc *time.Location) []Slot {
	local := now.In(loc)
	out := make([]Slot, 0, len(slots)*3)
	for _, offset := range []int{-1, 0, 1} {
		day := local.AddDate(0, 0, offset)
		for _, label := range slots {
			hm, err := time.Parse(SlotLayout, label)
			if err != nil {
				continue
			}
			at := time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc)
			out = append(out, Slot{Label: label, Date: at.Format(DateLayout), At: at})
		}
	}
	return out
}

// nearest returns the occurrence closest to now.
func nearest(now time.Time, slots []string, loc *time.Location) (Slot, bool) {
	var best Slot
	var bestDist time.Duration = -1
	for _, occ := range occurrences(now, slots, loc) {
		d := now.Sub(occ.At).Abs()
		if bestDist < 0 || d < bestDist {
			best, bestDist = occ, d
		}
	}
	return best, bestDist >= 0
}

// IsSlotWindow reports whether now lies within tolerance of any slot,
// evaluated in now's location.
func IsSlotWindow(now time.Time, slots []string, tolerance time.Duration) bool {
	occ, ok := nearest(now, slots, now.Location())
	return ok && now.Sub(occ.At).Abs() <= tolerance
}

// Due returns the slot an identity may post for now, if any: the nearest
// slot occurrence, when it is within tolerance and not yet fulfilled.
func (t *Tracker) Due(id string) (Slot, bool, error) {
	ident, err := t.lookup(id)
	if err != nil {
		return Slot{}, false, err
	}

	now := t.clock.Now()
	occ, ok := nearest(now, ident.slots, ident.loc)
	if !ok || now.Sub(occ.At).Abs() > t.tolerance {
		return Slot{}, false, nil
	}

	rec, err := t.store.GetSchedule(id)
	if errors.Is(err, storage.ErrNotFound) {
		return occ, true, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("loading schedule for %s: %w", id, err)
	}
	if rec.HasPosted(occ.Date, occ.Label) {
		return Slot{}, false, nil
	}
	return occ, true, nil
}

// CanPostNow reports whether identity has an unfulfilled slot in window.
func (t *Tracker) CanPostNow(id string) (bool, error) {
	_, ok, err := t.Due(id)
	return ok, err
}

// MarkPosted records the nearest slot occurrence as fulfilled.
func (t *Tracker) MarkPosted(id string) error {
	ident, err := t.lookup(id)
	if err != nil {
		return err
	}
	occ, _ := nearest(t.clock.Now(), ident.slots, ident.loc)
	return t.MarkSlot(id, occ)
}

// MarkSlot records slot as fulfilled. Marking an already fulfilled slot
// changes nothing. The write is synchronous.
func (t *Tracker) MarkSlot(id string, slot Slot) error {
	ident, err := t.lookup(id)
	if err != nil {
		return err
	}
	now := t.clock.Now()

	err = t.store.UpdateSchedule(id, func(rec *storage.ScheduleRecord, _ bool) error {
		rec.Slots = append([]string(nil), ident.slots...)
		rec.Timezone = ident.loc.String()
		if rec.AddPost(slot.Date, slot.Label) {
			rec.TotalPosts++
			rec.LastUpdated = now
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("marking %s %s for %s: %w", slot.Date, slot.Label, id, err)
	}
	debuglog.WithFields(debuglog.Fields{"identity": id, "slot": slot.Label, "date": slot.Date}).
		Infof("slot fulfilled")
	return nil
}

// NextSlot returns the next unfulfilled slot occurrence after now.
func (t *Tracker) NextSlot(id string) (Slot, error) {
	ident, err := t.lookup(id)
	if err != nil {
		return Slot{}, err
	}
	rec, err := t.store.GetSchedule(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Slot{}, err
	}

	now := t.clock.Now()
	occs := occurrences(now, ident.slots, ident.loc)
	sort.Slice(occs, func(i, j int) bool { return occs[i].At.Before(occs[j].At) })

	var first *Slot
	for i := range occs {
		if !occs[i].At.After(now) {
			continue
		}
		if first == nil {
			first = &occs[i]
		}
		if rec == nil || !rec.HasPosted(occs[i].Date, occs[i].Label) {
			return occs[i], nil
		}
	}
	if first != nil {
		return *first, nil
	}
	return Slot{}, fmt.Errorf("identity %s: no upcoming slot", id)
}

// NextCheck returns when Due should next be consulted for id. That is the
// opening of the earliest unfulfilled slot window, or half a tolerance from
// now while such a window is already open.
func (t *Tracker) NextCheck(id string) (time.Time, error) {
	ident, err := t.lookup(id)
	if err != nil {
		return time.Time{}, err
	}
	rec, err := t.store.GetSchedule(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, err
	}

	now := t.clock.Now()
	occs := occurrences(now, ident.slots, ident.loc)
	sort.Slice(occs, func(i, j int) bool { return occs[i].At.Before(occs[j].At) })

	for _, occ := range occs {
		if rec != nil && rec.HasPosted(occ.Date, occ.Label) {
			continue
		}
		if occ.At.Add(t.tolerance).Before(now) {
			continue
		}
		if opens := occ.At.Add(-t.tolerance); opens.After(now) {
			return opens, nil
		}
		return now.Add(t.tolerance / 2), nil
	}
	return time.Time{}, fmt.Errorf("identity %s: no upcoming slot", id)
}

// Stats summarizes an identity's schedule for status output.
type Stats struct {
	Identity    string
	Slots       []string
	Timezone    string
	LocalTime   time.Time
	TotalPosts  int
	TodayPosts  int
	LastUpdated time.Time
	NextSlot    Slot
	CanPostNow  bool
}

func (t *Tracker) Stats(id string) (Stats, error) {
	ident, err := t.lookup(id)
	if err != nil {
		return Stats{}, err
	}
	local := t.clock.Now().In(ident.loc)
	st := Stats{
		Identity:  id,
		Slots:     append([]string(nil), ident.slots...),
		Timezone:  ident.loc.String(),
		LocalTime: local,
	}

	rec, err := t.store.GetSchedule(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return Stats{}, err
	default:
		st.TotalPosts = rec.TotalPosts
		st.TodayPosts = rec.PostsOn(local.Format(DateLayout))
		st.LastUpdated = rec.LastUpdated
	}

	if st.NextSlot, err = t.NextSlot(id); err != nil {
		return Stats{}, err
	}
	if st.CanPostNow, err = t.CanPostNow(id); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Prune drops fulfilled dates older than the retention window from every
// stored record and returns how many dates were removed.
func (t *Tracker) Prune() (int, error) {
	records, err := t.store.AllSchedules()
	if err != nil {
		return 0, fmt.Errorf("listing schedules: %w", err)
	}

	now := t.clock.Now()
	removed := 0
	for _, rec := range records {
		loc := time.UTC
		if l, err := time.LoadLocation(rec.Timezone); err == nil {
			loc = l
		}
		cutoff := now.In(loc).AddDate(0, 0, -t.retentionDays).Format(DateLayout)

		err := t.store.UpdateSchedule(rec.Identity, func(r *storage.ScheduleRecord, _ bool) error {
			for date := range r.Fulfilled {
				// DateLayout sorts lexically.
				if date < cutoff {
					delete(r.Fulfilled, date)
					removed++
				}
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("pruning %s: %w", rec.Identity, err)
		}
	}
	return removed, nil
}
