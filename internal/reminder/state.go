package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"confirmbot/internal/platform/metrics"
	"confirmbot/internal/shared"
	"confirmbot/internal/store"
)

// DefaultIntervalDays is used when neither the store nor the config provide a positive interval.
const DefaultIntervalDays = 25

// Identity is a platform user id. Equality is exact.
type Identity string

// Set is an insertion ordered set of identities.
type Set struct {
	order []Identity
	index map[Identity]struct{}
}

// NewSet builds a Set from ids, dropping duplicates.
func NewSet(ids ...Identity) Set {
	s := Set{index: make(map[Identity]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was absent.
func (s *Set) Add(id Identity) bool {
	if s.index == nil {
		s.index = make(map[Identity]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id Identity) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s Set) Contains(id Identity) bool {
	_, ok := s.index[id]
	return ok
}

func (s Set) Len() int { return len(s.order) }

// Items returns the members in insertion order. The slice is a copy.
func (s Set) Items() []Identity {
	return append([]Identity(nil), s.order...)
}

func (s Set) Clone() Set {
	return NewSet(s.order...)
}

// State is the in-memory reminder state.
type State struct {
	Subscribers Set
	// LastFired is the raw persisted encoding, nil until the first evaluation.
	LastFired    *string
	IntervalDays int
}

func (s State) Clone() State {
	out := State{Subscribers: s.Subscribers.Clone(), IntervalDays: s.IntervalDays}
	if s.LastFired != nil {
		v := *s.LastFired
		out.LastFired = &v
	}
	return out
}

func (s State) record() store.Record {
	users := make([]string, 0, s.Subscribers.Len())
	for _, id := range s.Subscribers.order {
		users = append(users, string(id))
	}
	rec := store.Record{Version: store.CurrentVersion, Users: users, IntervalDays: s.IntervalDays}
	if s.LastFired != nil {
		v := *s.LastFired
		rec.LastReminder = &v
	}
	return rec
}

// StateOptions configures OpenState.
type StateOptions struct {
	DefaultIntervalDays int
	Logger              *slog.Logger
	Metrics             metrics.Recorder
}

// SharedState is the single owner of the reminder state. Every read and write goes
// through its mutex, and every mutation is written through to the store.
type SharedState struct {
	mu      sync.Mutex
	state   State
	dirty   bool
	store   store.Store
	log     *slog.Logger
	metrics metrics.Recorder
}

// OpenState loads the state from st, creating the default record on first run.
// Load errors are returned as is; callers treat them as fatal.
func OpenState(ctx context.Context, st store.Store, opts StateOptions) (*SharedState, error) {
	if opts.DefaultIntervalDays <= 0 {
		opts.DefaultIntervalDays = DefaultIntervalDays
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "state"))

	rec, created, err := store.LoadOrInit(ctx, st, store.Record{IntervalDays: opts.DefaultIntervalDays})
	if err != nil {
		return nil, fmt.Errorf("load reminder state: %w", err)
	}

	s := &SharedState{store: st, log: log, metrics: metrics.OrNoop(opts.Metrics)}
	s.state, s.dirty = s.fromRecord(rec, opts.DefaultIntervalDays)
	if created {
		log.Info("initialized reminder state", slog.Int("interval_days", s.state.IntervalDays))
	}
	if s.dirty {
		if err := s.flushLocked(ctx); err != nil {
			log.Warn("normalized state not saved yet", slog.Any("error", err))
		}
	}
	s.metrics.SetSubscribers(s.state.Subscribers.Len())
	log.Info("reminder state loaded",
		slog.Int("subscribers", s.state.Subscribers.Len()),
		slog.Int("interval_days", s.state.IntervalDays),
		slog.Any("last_reminder", s.state.LastFired),
	)
	return s, nil
}

// fromRecord converts rec and reports whether it had to be repaired.
func (s *SharedState) fromRecord(rec store.Record, defInterval int) (State, bool) {
	repaired := rec.Version < store.CurrentVersion
	st := State{Subscribers: NewSet(), IntervalDays: rec.IntervalDays}
	for _, u := range rec.Users {
		if !st.Subscribers.Add(Identity(u)) {
			s.log.Warn("dropping duplicate subscriber", slog.String("user_id", u))
			repaired = true
		}
	}
	if rec.IntervalDays <= 0 {
		s.log.Warn("invalid interval_days, using default",
			slog.Int("stored", rec.IntervalDays),
			slog.Int("default", defInterval),
		)
		st.IntervalDays = defInterval
		repaired = true
	}
	if rec.LastReminder != nil {
		v := *rec.LastReminder
		st.LastFired = &v
	}
	return st, repaired
}

// Snapshot returns a copy of the current state.
func (s *SharedState) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dirty reports whether the in-memory state has changes the store has not accepted yet.
func (s *SharedState) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Transact applies fn and persists the result when fn reports a change. If the save
// fails the mutation is rolled back and the persistence error is returned.
func (s *SharedState) Transact(ctx context.Context, fn func(*State) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.Clone()
	if !fn(&s.state) {
		return nil
	}
	if err := s.save(ctx); err != nil {
		s.state = prev
		s.metrics.IncPersistFailure("transact")
		return err
	}
	s.dirty = false
	s.metrics.SetSubscribers(s.state.Subscribers.Len())
	return nil
}

// Update applies fn and persists the result when fn reports a change. If the save
// fails the mutation is kept, the state is marked dirty and the error is returned;
// the next Flush or successful save writes it.
func (s *SharedState) Update(ctx context.Context, fn func(*State) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(&s.state) {
		return nil
	}
	s.dirty = true
	if err := s.flushLocked(ctx); err != nil {
		s.metrics.IncPersistFailure("update")
		return err
	}
	s.metrics.SetSubscribers(s.state.Subscribers.Len())
	return nil
}

// Flush saves the state if an earlier save failed.
func (s *SharedState) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.flushLocked(ctx); err != nil {
		s.metrics.IncPersistFailure("flush")
		return err
	}
	s.log.Info("pending state saved")
	return nil
}

func (s *SharedState) flushLocked(ctx context.Context) error {
	if err := s.save(ctx); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *SharedState) save(ctx context.Context) error {
	if err := s.store.Save(ctx, s.state.record()); err != nil {
		return shared.MarkKind(fmt.Errorf("save reminder state: %w", err), shared.KindPersistence)
	}
	return nil
}

// IntervalDays returns the current reminder interval.
func (s *SharedState) IntervalDays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IntervalDays
}
