package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duahabit/internal/catalog"
	"duahabit/internal/models"
)

func setupTestStore(t *testing.T) (*Postgres, func()) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}
	if err := createTestTables(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("create tables: %v", err)
	}
	store := NewPostgres(pool)
	return store, func() {
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	}
}

func createTestTables(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE users (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), email text UNIQUE NOT NULL, password_hash text NOT NULL, display_name text NOT NULL DEFAULT '', created_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE sessions (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE, token text UNIQUE NOT NULL, expires_at timestamptz NOT NULL, created_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE profiles (user_id uuid PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE, display_name text NOT NULL DEFAULT '', streak int NOT NULL DEFAULT 0, total_xp int NOT NULL DEFAULT 0, level int NOT NULL DEFAULT 1, last_active_date date, is_admin boolean NOT NULL DEFAULT false, created_at timestamptz NOT NULL DEFAULT now(), updated_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE categories (id text PRIMARY KEY, name text NOT NULL, sort_order int NOT NULL DEFAULT 0)`,
		`CREATE TABLE duas (id text PRIMARY KEY, category_id text NOT NULL REFERENCES categories(id), title text NOT NULL, arabic text NOT NULL DEFAULT '', transliteration text NOT NULL DEFAULT '', translation text NOT NULL DEFAULT '', source text NOT NULL DEFAULT '', repetitions int NOT NULL DEFAULT 1, recommended_slot text NOT NULL DEFAULT 'anytime', difficulty text NOT NULL DEFAULT 'beginner', xp int NOT NULL DEFAULT 0)`,
		`CREATE TABLE journeys (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), slug text UNIQUE NOT NULL, name text NOT NULL, description text NOT NULL DEFAULT '', estimated_minutes int NOT NULL DEFAULT 0, premium boolean NOT NULL DEFAULT false, featured boolean NOT NULL DEFAULT false, sort_order int NOT NULL DEFAULT 0)`,
		`CREATE TABLE journey_entries (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), journey_id uuid NOT NULL REFERENCES journeys(id) ON DELETE CASCADE, dua_id text NOT NULL REFERENCES duas(id), slot text NOT NULL, sort_order int NOT NULL DEFAULT 0, UNIQUE (journey_id, dua_id))`,
		`CREATE TABLE journey_subscriptions (user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE, journey_id uuid NOT NULL REFERENCES journeys(id) ON DELETE CASCADE, subscribed_at timestamptz NOT NULL DEFAULT now(), PRIMARY KEY (user_id, journey_id))`,
		`CREATE TABLE custom_habits (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE, dua_id text NOT NULL REFERENCES duas(id), slot text NOT NULL, position int, created_at timestamptz NOT NULL DEFAULT now(), removed_at timestamptz)`,
		`CREATE UNIQUE INDEX custom_habits_active ON custom_habits (user_id, dua_id) WHERE removed_at IS NULL`,
		`CREATE TABLE completions (id uuid PRIMARY KEY, user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE, habit_id uuid NOT NULL, day date NOT NULL, xp_awarded int NOT NULL, completed_at timestamptz NOT NULL DEFAULT now(), UNIQUE (user_id, habit_id, day))`,
	}
	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func testPack() catalog.Pack {
	return catalog.Pack{
		Categories: []catalog.Category{{ID: "protection", Name: "Protection"}},
		Duas: []catalog.Dua{
			{ID: "ayatul-kursi", Category: "protection", Title: "Ayatul Kursi", Repetitions: 1, Slot: "evening", Difficulty: "beginner", XP: 20},
			{ID: "morning-adhkar", Category: "protection", Title: "Morning Adhkar", Repetitions: 1, Slot: "morning", Difficulty: "beginner", XP: 15},
		},
		Journeys: []catalog.Journey{{
			Slug: "daily-protection",
			Name: "Daily Protection",
			Duas: []catalog.JourneyDua{
				{Dua: "morning-adhkar", Slot: "morning"},
				{Dua: "ayatul-kursi", Slot: "evening"},
			},
		}},
	}
}

func seedUserWithHabit(t *testing.T, store *Postgres) (string, string) {
	t.Helper()
	ctx := context.Background()
	if err := store.SeedCatalog(ctx, testPack()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	u, err := store.CreateUser(ctx, "a@b.com", "x", "A")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if _, err := store.EnsureProfile(ctx, u.ID, "A"); err != nil {
		t.Fatalf("profile: %v", err)
	}
	j, err := store.GetJourneyBySlug(ctx, "daily-protection")
	if err != nil {
		t.Fatalf("journey: %v", err)
	}
	entries, err := store.ListJourneyEntries(ctx, []string{j.ID})
	if err != nil || len(entries) != 2 {
		t.Fatalf("entries: %v (%d)", err, len(entries))
	}
	return u.ID, entries[0].ID
}

func TestCompleteIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	userID, habitID := seedUserWithHabit(t, store)
	day := models.Day("2026-08-20")
	rec := models.CompletionRecord{ID: "11111111-1111-1111-1111-111111111111", UserID: userID, HabitID: habitID, Day: day, XPAwarded: 15, CompletedAt: time.Now()}
	advance := func(p models.UserProfile) models.UserProfile {
		p.TotalXP += 15
		p.Streak = 1
		d := day
		p.LastActiveDate = &d
		return p
	}

	stored, profile, created, err := store.Complete(ctx, rec, advance)
	if err != nil || !created {
		t.Fatalf("first complete: created=%v err=%v", created, err)
	}
	if stored.XPAwarded != 15 || profile.TotalXP != 15 || profile.Streak != 1 {
		t.Fatalf("unexpected state after first complete: %+v %+v", stored, profile)
	}

	again, profile, created, err := store.Complete(ctx, rec, advance)
	if err != nil || created {
		t.Fatalf("second complete should be noop: created=%v err=%v", created, err)
	}
	if again.ID != stored.ID || profile.TotalXP != 15 {
		t.Fatalf("double tap mutated state: %+v %+v", again, profile)
	}
}

func TestSeedCatalogKeepsEntryIDs(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SeedCatalog(ctx, testPack()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	j, err := store.GetJourneyBySlug(ctx, "daily-protection")
	if err != nil {
		t.Fatalf("journey: %v", err)
	}
	before, err := store.ListJourneyEntries(ctx, []string{j.ID})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	pack := testPack()
	pack.Journeys[0].Duas = pack.Journeys[0].Duas[:1] // drop ayatul-kursi
	if err := store.SeedCatalog(ctx, pack); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	after, err := store.ListJourneyEntries(ctx, []string{j.ID})
	if err != nil {
		t.Fatalf("entries after reseed: %v", err)
	}
	if len(before) != 2 || len(after) != 1 {
		t.Fatalf("expected 2 then 1 entries, got %d then %d", len(before), len(after))
	}
	if after[0].ID != before[0].ID {
		t.Fatalf("entry id changed across reseed: %s vs %s", after[0].ID, before[0].ID)
	}
}

func TestAddCustomHabitActiveUnique(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	userID, _ := seedUserWithHabit(t, store)

	h, created, err := store.AddCustomHabit(ctx, userID, "ayatul-kursi", models.SlotEvening, nil)
	if err != nil || !created {
		t.Fatalf("add: created=%v err=%v", created, err)
	}
	same, created, err := store.AddCustomHabit(ctx, userID, "ayatul-kursi", models.SlotMorning, nil)
	if err != nil || created || same.ID != h.ID {
		t.Fatalf("re-add should return existing: created=%v err=%v", created, err)
	}

	if err := store.RemoveCustomHabit(ctx, userID, h.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.RemoveCustomHabit(ctx, userID, h.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove should be not found, got %v", err)
	}

	fresh, created, err := store.AddCustomHabit(ctx, userID, "ayatul-kursi", models.SlotEvening, nil)
	if err != nil || !created || fresh.ID == h.ID {
		t.Fatalf("add after remove should create a new habit: created=%v err=%v", created, err)
	}
	// The removed habit stays resolvable for old completion records.
	if _, err := store.GetCustomHabit(ctx, h.ID); err != nil {
		t.Fatalf("removed habit should still resolve: %v", err)
	}
}

func TestSubscribeIdempotentUnsubscribeMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	userID, _ := seedUserWithHabit(t, store)
	j, err := store.GetJourneyBySlug(ctx, "daily-protection")
	if err != nil {
		t.Fatalf("journey: %v", err)
	}

	_, created, err := store.Subscribe(ctx, userID, j.ID)
	if err != nil || !created {
		t.Fatalf("subscribe: created=%v err=%v", created, err)
	}
	_, created, err = store.Subscribe(ctx, userID, j.ID)
	if err != nil || created {
		t.Fatalf("resubscribe should be noop: created=%v err=%v", created, err)
	}

	if err := store.Unsubscribe(ctx, userID, j.ID); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := store.Unsubscribe(ctx, userID, j.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second unsubscribe should be not found, got %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, "a@b.com", "x", "A"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateUser(ctx, "a@b.com", "y", "B"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
