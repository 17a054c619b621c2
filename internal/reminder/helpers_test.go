package reminder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"confirmbot/internal/store"
)

var errDiskFull = errors.New("disk full")

// memStore is an in-memory store.Store with failure injection.
type memStore struct {
	mu      sync.Mutex
	rec     *store.Record
	saves   int
	failing bool
}

func (m *memStore) Name() string { return "memory" }

func (m *memStore) Load(context.Context) (store.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return store.Record{}, false, nil
	}
	return m.rec.Clone(), true, nil
}

func (m *memStore) Save(_ context.Context, rec store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errDiskFull
	}
	c := rec.Clone()
	m.rec = &c
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) setFailing(v bool) {
	m.mu.Lock()
	m.failing = v
	m.mu.Unlock()
}

func (m *memStore) saved() store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return store.Record{}
	}
	return m.rec.Clone()
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func strPtr(s string) *string { return &s }

func seeded(users []string, last *string, interval int) *memStore {
	return &memStore{rec: &store.Record{Version: store.CurrentVersion, Users: users, LastReminder: last, IntervalDays: interval}}
}

func openState(t *testing.T, st store.Store) *SharedState {
	t.Helper()
	s, err := OpenState(context.Background(), st, StateOptions{DefaultIntervalDays: 25})
	require.NoError(t, err)
	return s
}

func fixedNow(day string) func() time.Time {
	d, err := ParseDate(day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return time.Date(d.Year, d.Month, d.Day, 9, 30, 0, 0, time.UTC) }
}

// countingNotifier records every fan-out.
type countingNotifier struct {
	mu    sync.Mutex
	calls [][]Identity
	hook  func(ctx context.Context)
}

func (n *countingNotifier) Dispatch(ctx context.Context, subs []Identity) DeliveryReport {
	if n.hook != nil {
		n.hook(ctx)
	}
	n.mu.Lock()
	n.calls = append(n.calls, append([]Identity(nil), subs...))
	n.mu.Unlock()
	return DeliveryReport{Attempted: len(subs), Succeeded: len(subs)}
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// fakeChannel fails lookups, resolutions or sends for configured ids.
type fakeChannel struct {
	mu            sync.Mutex
	lookupFail    map[Identity]bool
	resolveFail   map[Identity]bool
	sendFail      map[Identity]bool
	panicOn       map[Identity]bool
	block         map[Identity]bool
	links         map[Identity]string
	sent          map[Identity]string
	inFlight, max int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		lookupFail:  map[Identity]bool{},
		resolveFail: map[Identity]bool{},
		sendFail:    map[Identity]bool{},
		panicOn:     map[Identity]bool{},
		block:       map[Identity]bool{},
		links:       map[Identity]string{},
		sent:        map[Identity]string{},
	}
}

func (f *fakeChannel) LookupRecipient(_ context.Context, id Identity) (Recipient, error) {
	if f.lookupFail[id] {
		return Recipient{}, fmt.Errorf("unknown user %s", id)
	}
	return Recipient{ID: id, Name: "user-" + string(id)}, nil
}

func (f *fakeChannel) ResolveDisplayContext(_ context.Context, r Recipient) (string, error) {
	if f.resolveFail[r.ID] {
		return "", errors.New("no shared guild")
	}
	return f.links[r.ID], nil
}

func (f *fakeChannel) SendDirectMessage(ctx context.Context, r Recipient, text string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.max {
		f.max = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.panicOn[r.ID] {
		panic("channel exploded")
	}
	if f.block[r.ID] {
		<-ctx.Done()
		return ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	if f.sendFail[r.ID] {
		return errors.New("cannot send messages to this user")
	}
	f.mu.Lock()
	f.sent[r.ID] = text
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) sentTo() map[Identity]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Identity]string, len(f.sent))
	for k, v := range f.sent {
		out[k] = v
	}
	return out
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
