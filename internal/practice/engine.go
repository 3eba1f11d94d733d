// Package practice is the daily practice engine: it resolves which duas a
// user owes on a given day, records completions, and keeps streak, XP and
// level in sync with the completion history.
package practice

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"duahabit/internal/models"
	"duahabit/internal/progression"
	"duahabit/internal/storage"
)

var ErrInvalidSlot = errors.New("invalid slot")

type Engine struct {
	Store storage.Store
	Clock Clock
}

func New(store storage.Store) *Engine {
	return &Engine{Store: store, Clock: RealClock{}}
}

// Today is the server-local calendar day, used only when a request does not
// carry the user-local date.
func (e *Engine) Today() models.Day {
	return models.NewDay(e.Clock.Now())
}

// Profile returns the user's profile with the streak decay rule applied:
// when the last active day is neither today nor yesterday the streak falls
// to zero. The reset is persisted on this read so there is no scheduler to
// run, an idle profile simply corrects itself the next time anyone looks.
func (e *Engine) Profile(ctx context.Context, userID string, today models.Day) (models.UserProfile, error) {
	p, err := e.Store.GetProfile(ctx, userID)
	if err != nil {
		return models.UserProfile{}, err
	}
	if p.Streak > 0 && progression.StreakExpired(p.LastActiveDate, today) {
		return e.Store.ResetStreak(ctx, userID)
	}
	return p, nil
}

type CompleteResult struct {
	Record    models.CompletionRecord `json:"record"`
	Profile   models.UserProfile      `json:"profile"`
	Completed bool                    `json:"completed"`
	OffPlan   bool                    `json:"off_plan"`
	LeveledUp bool                    `json:"leveled_up"`
}

// Complete marks a habit done for the given day. Completing the same habit
// twice on one day returns the original record with Completed=false and
// changes nothing. Habits outside the day's plan are allowed and flagged
// OffPlan; ids that do not resolve to any habit at all are ErrNotFound.
func (e *Engine) Complete(ctx context.Context, userID, habitID string, day models.Day) (CompleteResult, error) {
	due, _, err := e.resolve(ctx, userID, day)
	if err != nil {
		return CompleteResult{}, err
	}

	var xp int
	offPlan := true
	for _, h := range due.All() {
		if h.ID == habitID {
			xp = h.Dua.XP
			offPlan = false
			break
		}
	}
	if offPlan {
		xp, err = e.lookupXP(ctx, userID, habitID)
		if err != nil {
			return CompleteResult{}, err
		}
	}

	rec := models.CompletionRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		HabitID:     habitID,
		Day:         day,
		XPAwarded:   xp,
		CompletedAt: e.Clock.Now().UTC(),
	}
	var leveledUp bool
	stored, profile, created, err := e.Store.Complete(ctx, rec, func(p models.UserProfile) models.UserProfile {
		before := p.Level
		p = progression.ApplyCompletion(p, xp, day)
		leveledUp = p.Level > before
		return p
	})
	if err != nil {
		return CompleteResult{}, err
	}
	return CompleteResult{
		Record:    stored,
		Profile:   profile,
		Completed: created,
		OffPlan:   offPlan,
		LeveledUp: leveledUp,
	}, nil
}

// lookupXP resolves a habit that is not on the day's plan: a journey entry
// the user is not subscribed to, or one of their own habits that was since
// removed.
func (e *Engine) lookupXP(ctx context.Context, userID, habitID string) (int, error) {
	if entry, err := e.Store.GetJourneyEntry(ctx, habitID); err == nil {
		return entry.Dua.XP, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	habit, err := e.Store.GetCustomHabit(ctx, habitID)
	if err != nil {
		return 0, err
	}
	if habit.UserID != userID {
		return 0, storage.ErrNotFound
	}
	dua, err := e.Store.GetDua(ctx, habit.DuaID)
	if err != nil {
		return 0, err
	}
	return dua.XP, nil
}

func (e *Engine) Subscribe(ctx context.Context, userID, journeyID string) (models.JourneySubscription, bool, error) {
	if _, err := e.Store.GetJourney(ctx, journeyID); err != nil {
		return models.JourneySubscription{}, false, err
	}
	return e.Store.Subscribe(ctx, userID, journeyID)
}

func (e *Engine) Unsubscribe(ctx context.Context, userID, journeyID string) error {
	return e.Store.Unsubscribe(ctx, userID, journeyID)
}

// AddCustomHabit puts a dua on the user's own list. An empty slot falls
// back to the dua's recommended slot. Adding a dua that is already on the
// list returns the existing habit unchanged.
func (e *Engine) AddCustomHabit(ctx context.Context, userID, duaID string, slot models.TimeSlot, position *int) (models.CustomHabit, bool, error) {
	dua, err := e.Store.GetDua(ctx, duaID)
	if err != nil {
		return models.CustomHabit{}, false, err
	}
	if slot == "" {
		slot = dua.RecommendedSlot
	}
	if !slot.Valid() {
		return models.CustomHabit{}, false, ErrInvalidSlot
	}
	return e.Store.AddCustomHabit(ctx, userID, duaID, slot, position)
}

func (e *Engine) RemoveCustomHabit(ctx context.Context, userID, id string) error {
	return e.Store.RemoveCustomHabit(ctx, userID, id)
}
