// Package storage is the single persistence boundary: one Store contract
// with a Postgres implementation for deployments and an in-memory one for
// tests and local runs, selected by configuration.
package storage

import (
	"context"
	"errors"
	"time"

	"duahabit/internal/catalog"
	"duahabit/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrUnavailable marks transient storage failures. Callers may retry
	// with backoff; the HTTP layer maps it to 503.
	ErrUnavailable = errors.New("storage unavailable")
)

type Store interface {
	// Identity.
	CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (models.Session, error)

	// Profiles. EnsureProfile creates the row on first sign-in and is a
	// no-op afterwards. ResetStreak is the lazy streak decay write.
	EnsureProfile(ctx context.Context, userID, displayName string) (models.UserProfile, error)
	GetProfile(ctx context.Context, userID string) (models.UserProfile, error)
	ResetStreak(ctx context.Context, userID string) (models.UserProfile, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) (models.UserProfile, error)

	// Catalog reads. The catalog is only ever written by SeedCatalog, which
	// upserts a validated pack and keeps journey entry ids stable across
	// reseeds.
	SeedCatalog(ctx context.Context, pack catalog.Pack) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListDuas(ctx context.Context, categoryID string) ([]models.Dua, error)
	GetDua(ctx context.Context, id string) (models.Dua, error)
	ListJourneys(ctx context.Context) ([]models.Journey, error)
	GetJourney(ctx context.Context, id string) (models.Journey, error)
	GetJourneyBySlug(ctx context.Context, slug string) (models.Journey, error)
	GetJourneyEntry(ctx context.Context, id string) (models.JourneyEntry, error)
	ListJourneyEntries(ctx context.Context, journeyIDs []string) ([]models.JourneyEntry, error)

	// Journey subscriptions. Subscribe reports whether a new subscription
	// was created; resubscribing is a no-op. Unsubscribe returns
	// ErrNotFound when there is nothing to remove.
	ListSubscribedJourneys(ctx context.Context, userID string) ([]models.Journey, error)
	Subscribe(ctx context.Context, userID, journeyID string) (models.JourneySubscription, bool, error)
	Unsubscribe(ctx context.Context, userID, journeyID string) error

	// Custom habits. ListCustomHabits returns active habits only;
	// GetCustomHabit also resolves removed ones so old completion records
	// stay explainable. AddCustomHabit returns the existing active habit
	// when the user already has one for the dua.
	ListCustomHabits(ctx context.Context, userID string) ([]models.CustomHabit, error)
	GetCustomHabit(ctx context.Context, id string) (models.CustomHabit, error)
	AddCustomHabit(ctx context.Context, userID, duaID string, slot models.TimeSlot, position *int) (models.CustomHabit, bool, error)
	RemoveCustomHabit(ctx context.Context, userID, id string) error

	// Completions. Complete writes the record and applies advance to the
	// profile in one atomic step, serialized per user. When a record for
	// (user, habit, day) already exists it returns that record and the
	// untouched profile with created=false; advance is not called.
	Complete(ctx context.Context, rec models.CompletionRecord, advance func(models.UserProfile) models.UserProfile) (models.CompletionRecord, models.UserProfile, bool, error)
	ListCompletions(ctx context.Context, userID string, from, to models.Day) ([]models.CompletionRecord, error)
}
