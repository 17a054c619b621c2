// Package command turns chat commands into replies. It knows nothing about the chat
// platform: adapters pass the caller's identity in and send the returned text back.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"confirmbot/internal/reminder"
	"confirmbot/internal/shared"
)

// Command names shared by the platform adapters.
const (
	NameAddReminder    = "add_reminder"
	NameRemoveReminder = "remove_reminder"
	NameConfirm        = "confirm"
	NameNextReminder   = "next_reminder"
	NameSync           = "sync"
)

// Spec describes a command for platform registration.
type Spec struct {
	Name        string
	Description string
}

// Registry is the subscriber membership the surface mutates.
type Registry interface {
	Add(ctx context.Context, id reminder.Identity) (reminder.AddResult, error)
	Remove(ctx context.Context, id reminder.Identity) (reminder.RemoveResult, error)
}

// Estimator answers when the next reminder is due.
type Estimator interface {
	NextFireEstimate() reminder.Estimate
}

// Syncer re-registers commands on the platform and returns a progress line per step.
type Syncer interface {
	SyncCommands(ctx context.Context) ([]string, error)
}

// Surface builds the replies for every user facing command.
type Surface struct {
	registry     Registry
	clock        Estimator
	intervalDays func() int
	log          *slog.Logger
}

// New returns a Surface. intervalDays reports the current reminder interval.
func New(reg Registry, clock Estimator, intervalDays func() int, log *slog.Logger) *Surface {
	if log == nil {
		log = slog.Default()
	}
	return &Surface{
		registry:     reg,
		clock:        clock,
		intervalDays: intervalDays,
		log:          log.With(slog.String("component", "commands")),
	}
}

// Specs lists the commands shown to every user.
func (s *Surface) Specs() []Spec {
	return []Spec{
		{Name: NameAddReminder, Description: fmt.Sprintf("Add yourself to the %d-day reminder list", s.intervalDays())},
		{Name: NameRemoveReminder, Description: "Remove yourself from the reminder list"},
		{Name: NameConfirm, Description: "Confirm your activity"},
		{Name: NameNextReminder, Description: "Check when the next reminder will be sent"},
	}
}

func (s *Surface) AddReminder(ctx context.Context, id reminder.Identity) string {
	res, err := s.registry.Add(ctx, id)
	if err != nil {
		return s.failed(NameAddReminder, err)
	}
	if res == reminder.AlreadyPresent {
		return "You're already on the reminder list!"
	}
	return fmt.Sprintf("You've been added to the reminder list! You'll be reminded every %d days to confirm your activity.", s.intervalDays())
}

func (s *Surface) RemoveReminder(ctx context.Context, id reminder.Identity) string {
	res, err := s.registry.Remove(ctx, id)
	if err != nil {
		return s.failed(NameRemoveReminder, err)
	}
	if res == reminder.NotPresent {
		return "You're not on the reminder list!"
	}
	return "You've been removed from the reminder list!"
}

// Confirm acknowledges an activity confirmation. name is only logged.
func (s *Surface) Confirm(_ context.Context, id reminder.Identity, name string) string {
	s.log.Info("user confirmed activity", slog.String("user_id", string(id)), slog.String("name", name))
	return "Thank you for confirming your activity!"
}

func (s *Surface) NextReminder(context.Context) string {
	est := s.clock.NextFireEstimate()
	switch {
	case !est.Known:
		return "No reminders have been sent yet."
	case est.DueNow:
		return "Reminder is due to be sent today!"
	default:
		return fmt.Sprintf("Next reminder will be sent in %d days (on %s).", est.DaysLeft, est.NextDate)
	}
}

// Sync re-registers the platform commands. Callers check ownership first.
func (s *Surface) Sync(ctx context.Context, syncer Syncer) []string {
	lines := []string{"Syncing commands..."}
	out, err := syncer.SyncCommands(ctx)
	lines = append(lines, out...)
	if err != nil {
		s.log.Error("command sync failed", slog.Any("error", err))
		lines = append(lines, fmt.Sprintf("Failed to sync commands: %v", err))
	}
	return lines
}

func (s *Surface) failed(cmd string, err error) string {
	level := slog.LevelError
	if shared.IsValidation(err) {
		level = slog.LevelWarn
	}
	s.log.Log(context.Background(), level, "command failed",
		slog.String("command", cmd),
		slog.String("kind", shared.KindOf(err).String()),
		slog.Any("error", err),
	)
	return ErrorReply(err)
}

// ErrorReply is the reply for an unexpected failure.
func ErrorReply(err error) string {
	return fmt.Sprintf("An error occurred: %v", err)
}
