package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"confirmbot/internal/reminder"
	"confirmbot/internal/shared"
)

type fakeRegistry struct {
	members map[reminder.Identity]bool
	err     error
}

func (f *fakeRegistry) Add(_ context.Context, id reminder.Identity) (reminder.AddResult, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.members[id] {
		return reminder.AlreadyPresent, nil
	}
	f.members[id] = true
	return reminder.Added, nil
}

func (f *fakeRegistry) Remove(_ context.Context, id reminder.Identity) (reminder.RemoveResult, error) {
	if f.err != nil {
		return 0, f.err
	}
	if !f.members[id] {
		return reminder.NotPresent, nil
	}
	delete(f.members, id)
	return reminder.Removed, nil
}

type fixedEstimate reminder.Estimate

func (f fixedEstimate) NextFireEstimate() reminder.Estimate { return reminder.Estimate(f) }

type fakeSyncer struct {
	lines []string
	err   error
}

func (f fakeSyncer) SyncCommands(context.Context) ([]string, error) { return f.lines, f.err }

func newSurface(reg Registry, est Estimator) *Surface {
	return New(reg, est, func() int { return 25 }, nil)
}

func TestAddRemove(t *testing.T) {
	ctx := context.Background()
	s := newSurface(&fakeRegistry{members: map[reminder.Identity]bool{}}, fixedEstimate{})

	assert.Equal(t, "You've been added to the reminder list! You'll be reminded every 25 days to confirm your activity.", s.AddReminder(ctx, "1"))
	assert.Equal(t, "You're already on the reminder list!", s.AddReminder(ctx, "1"))
	assert.Equal(t, "You've been removed from the reminder list!", s.RemoveReminder(ctx, "1"))
	assert.Equal(t, "You're not on the reminder list!", s.RemoveReminder(ctx, "1"))
}

func TestErrorsBecomeReplies(t *testing.T) {
	err := shared.MarkKind(errors.New("disk full"), shared.KindPersistence)
	s := newSurface(&fakeRegistry{err: err}, fixedEstimate{})

	assert.Equal(t, "An error occurred: persistence failure: disk full", s.AddReminder(context.Background(), "1"))
	assert.Contains(t, s.RemoveReminder(context.Background(), "1"), "An error occurred")
}

func TestConfirm(t *testing.T) {
	s := newSurface(&fakeRegistry{}, fixedEstimate{})
	assert.Equal(t, "Thank you for confirming your activity!", s.Confirm(context.Background(), "1", "alice"))
}

func TestNextReminder(t *testing.T) {
	next, _ := reminder.ParseDate("2024-01-26")
	tests := []struct {
		name string
		est  reminder.Estimate
		want string
	}{
		{"unknown", reminder.Estimate{}, "No reminders have been sent yet."},
		{"due", reminder.Estimate{Known: true, NextDate: next, DueNow: true}, "Reminder is due to be sent today!"},
		{"pending", reminder.Estimate{Known: true, NextDate: next, DaysLeft: 6}, "Next reminder will be sent in 6 days (on 2024-01-26)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSurface(&fakeRegistry{}, fixedEstimate(tt.est))
			assert.Equal(t, tt.want, s.NextReminder(context.Background()))
		})
	}
}

func TestSync(t *testing.T) {
	s := newSurface(&fakeRegistry{}, fixedEstimate{})

	lines := s.Sync(context.Background(), fakeSyncer{lines: []string{"Synced 4 command(s) globally"}})
	assert.Equal(t, []string{"Syncing commands...", "Synced 4 command(s) globally"}, lines)

	lines = s.Sync(context.Background(), fakeSyncer{err: errors.New("forbidden")})
	assert.Equal(t, "Failed to sync commands: forbidden", lines[len(lines)-1])
}

func TestSpecs(t *testing.T) {
	specs := newSurface(&fakeRegistry{}, fixedEstimate{}).Specs()
	assert.Len(t, specs, 4)
	assert.Equal(t, "Add yourself to the 25-day reminder list", specs[0].Description)
}
