package reminder

import (
	"context"
	"fmt"
	"log/slog"

	"confirmbot/internal/shared"
)

// AddResult is the outcome of Registry.Add.
type AddResult int

const (
	Added AddResult = iota + 1
	AlreadyPresent
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// RemoveResult is the outcome of Registry.Remove.
type RemoveResult int

const (
	Removed RemoveResult = iota + 1
	NotPresent
)

func (r RemoveResult) String() string {
	switch r {
	case Removed:
		return "removed"
	case NotPresent:
		return "not_present"
	default:
		return "unknown"
	}
}

// Registry manages subscriber membership on top of SharedState.
type Registry struct {
	state *SharedState
	log   *slog.Logger
}

func NewRegistry(state *SharedState, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{state: state, log: log.With(slog.String("component", "registry"))}
}

// Add subscribes id. The state is persisted only when id was not subscribed; if
// that save fails the membership change is undone.
func (r *Registry) Add(ctx context.Context, id Identity) (AddResult, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: empty identity", shared.ErrValidation)
	}
	res := AlreadyPresent
	err := r.state.Transact(ctx, func(st *State) bool {
		if st.Subscribers.Add(id) {
			res = Added
			return true
		}
		return false
	})
	if err != nil {
		r.log.Error("add subscriber failed", slog.String("user_id", string(id)), slog.Any("error", err))
		return 0, err
	}
	r.log.Info("add subscriber", slog.String("user_id", string(id)), slog.String("result", res.String()))
	return res, nil
}

// Remove unsubscribes id, persisting only when it was subscribed.
func (r *Registry) Remove(ctx context.Context, id Identity) (RemoveResult, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: empty identity", shared.ErrValidation)
	}
	res := NotPresent
	err := r.state.Transact(ctx, func(st *State) bool {
		if st.Subscribers.Remove(id) {
			res = Removed
			return true
		}
		return false
	})
	if err != nil {
		r.log.Error("remove subscriber failed", slog.String("user_id", string(id)), slog.Any("error", err))
		return 0, err
	}
	r.log.Info("remove subscriber", slog.String("user_id", string(id)), slog.String("result", res.String()))
	return res, nil
}

func (r *Registry) Contains(id Identity) bool {
	return r.state.Snapshot().Subscribers.Contains(id)
}

func (r *Registry) Count() int {
	return r.state.Snapshot().Subscribers.Len()
}

// Subscribers returns the current members in subscription order.
func (r *Registry) Subscribers() []Identity {
	return r.state.Snapshot().Subscribers.Items()
}
