package storage

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"duahabit/internal/catalog"
	"duahabit/internal/models"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

var _ Store = (*Postgres)(nil)

const duaCols = `id, category_id, title, arabic, transliteration, translation, source, repetitions, recommended_slot, difficulty, xp`

const profileCols = `user_id, display_name, streak, total_xp, level, last_active_date, is_admin, created_at, updated_at`

const entryCols = `e.id, e.journey_id, e.slot, e.sort_order, d.id, d.category_id, d.title, d.arabic, d.transliteration, d.translation, d.source, d.repetitions, d.recommended_slot, d.difficulty, d.xp`

const completionCols = `id, user_id, habit_id, day, xp_awarded, completed_at`

// storeErr maps driver failures onto the package sentinels: missing rows and
// broken references become ErrNotFound, unique violations ErrConflict, and
// connectivity problems ErrUnavailable so callers know a retry can help.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503", "22P02":
			return ErrNotFound
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	return err
}

func dayParam(d *models.Day) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}

func scanDua(row pgx.Row) (models.Dua, error) {
	var d models.Dua
	var slot string
	if err := row.Scan(&d.ID, &d.CategoryID, &d.Title, &d.Arabic, &d.Transliteration, &d.Translation, &d.Source, &d.Repetitions, &slot, &d.Difficulty, &d.XP); err != nil {
		return models.Dua{}, err
	}
	d.RecommendedSlot = models.TimeSlot(slot)
	return d, nil
}

func scanEntry(row pgx.Row) (models.JourneyEntry, error) {
	var e models.JourneyEntry
	var eslot, dslot string
	if err := row.Scan(&e.ID, &e.JourneyID, &eslot, &e.SortOrder,
		&e.Dua.ID, &e.Dua.CategoryID, &e.Dua.Title, &e.Dua.Arabic, &e.Dua.Transliteration, &e.Dua.Translation, &e.Dua.Source, &e.Dua.Repetitions, &dslot, &e.Dua.Difficulty, &e.Dua.XP); err != nil {
		return models.JourneyEntry{}, err
	}
	e.Slot = models.TimeSlot(eslot)
	e.Dua.RecommendedSlot = models.TimeSlot(dslot)
	return e, nil
}

func scanProfile(row pgx.Row) (models.UserProfile, error) {
	var p models.UserProfile
	var last *time.Time
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.Streak, &p.TotalXP, &p.Level, &last, &p.IsAdmin, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.UserProfile{}, err
	}
	if last != nil {
		d := models.NewDay(*last)
		p.LastActiveDate = &d
	}
	return p, nil
}

func scanCustomHabit(row pgx.Row) (models.CustomHabit, error) {
	var h models.CustomHabit
	var slot string
	if err := row.Scan(&h.ID, &h.UserID, &h.DuaID, &slot, &h.Position, &h.CreatedAt, &h.RemovedAt); err != nil {
		return models.CustomHabit{}, err
	}
	h.Slot = models.TimeSlot(slot)
	return h, nil
}

func scanCompletion(row pgx.Row) (models.CompletionRecord, error) {
	var rec models.CompletionRecord
	var day time.Time
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.HabitID, &day, &rec.XPAwarded, &rec.CompletedAt); err != nil {
		return models.CompletionRecord{}, err
	}
	rec.Day = models.NewDay(day)
	return rec, nil
}

func (s *Postgres) CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error) {
	u := models.User{Email: email, PasswordHash: passwordHash, DisplayName: displayName}
	err := s.Pool.QueryRow(ctx, `INSERT INTO users (email, password_hash, display_name) VALUES ($1, $2, $3) RETURNING id, created_at`, email, passwordHash, displayName).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return models.User{}, storeErr(err)
	}
	return u, nil
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.Pool.QueryRow(ctx, `SELECT id, email, password_hash, display_name, created_at FROM users WHERE email=$1`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return models.User{}, storeErr(err)
	}
	return u, nil
}

func (s *Postgres) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.Pool.QueryRow(ctx, `SELECT id, email, password_hash, display_name, created_at FROM users WHERE id=$1`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return models.User{}, storeErr(err)
	}
	return u, nil
}

func (s *Postgres) CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO sessions (user_id, token, expires_at) VALUES ($1, $2, $3)`, userID, token, expiresAt)
	return storeErr(err)
}

func (s *Postgres) GetSession(ctx context.Context, token string) (models.Session, error) {
	var sess models.Session
	err := s.Pool.QueryRow(ctx, `SELECT id, user_id, token, expires_at, created_at FROM sessions WHERE token=$1 AND expires_at > now()`, token).Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return models.Session{}, storeErr(err)
	}
	return sess, nil
}

func (s *Postgres) EnsureProfile(ctx context.Context, userID, displayName string) (models.UserProfile, error) {
	_, err := s.Pool.Exec(ctx, `INSERT INTO profiles (user_id, display_name) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`, userID, displayName)
	if err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Postgres) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	p, err := scanProfile(s.Pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id=$1`, userID))
	if err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	return p, nil
}

func (s *Postgres) ResetStreak(ctx context.Context, userID string) (models.UserProfile, error) {
	p, err := scanProfile(s.Pool.QueryRow(ctx, `UPDATE profiles SET streak=0, updated_at=now() WHERE user_id=$1 RETURNING `+profileCols, userID))
	if err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	return p, nil
}

func (s *Postgres) UpdateDisplayName(ctx context.Context, userID, displayName string) (models.UserProfile, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE users SET display_name=$2 WHERE id=$1`, userID, displayName); err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	p, err := scanProfile(tx.QueryRow(ctx, `UPDATE profiles SET display_name=$2, updated_at=now() WHERE user_id=$1 RETURNING `+profileCols, userID, displayName))
	if err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.UserProfile{}, storeErr(err)
	}
	return p, nil
}

// SeedCatalog upserts a validated content pack. Journey entries keep their
// ids across reseeds through the (journey_id, dua_id) conflict target, so
// completion records written against an entry stay valid after a content
// update. Rows that vanished from the pack are pruned per journey; duas and
// categories are never deleted because old completions may reference them.
func (s *Postgres) SeedCatalog(ctx context.Context, pack catalog.Pack) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback(ctx)

	for i, c := range pack.Categories {
		if _, err := tx.Exec(ctx, `INSERT INTO categories (id, name, sort_order) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, sort_order=EXCLUDED.sort_order`, c.ID, c.Name, i); err != nil {
			return storeErr(err)
		}
	}
	for _, d := range pack.Duas {
		if _, err := tx.Exec(ctx, `INSERT INTO duas (id, category_id, title, arabic, transliteration, translation, source, repetitions, recommended_slot, difficulty, xp)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (id) DO UPDATE SET category_id=EXCLUDED.category_id, title=EXCLUDED.title, arabic=EXCLUDED.arabic, transliteration=EXCLUDED.transliteration, translation=EXCLUDED.translation, source=EXCLUDED.source, repetitions=EXCLUDED.repetitions, recommended_slot=EXCLUDED.recommended_slot, difficulty=EXCLUDED.difficulty, xp=EXCLUDED.xp`,
			d.ID, d.Category, d.Title, d.Arabic, d.Transliteration, d.Translation, d.Source, d.Repetitions, d.Slot, d.Difficulty, d.XP); err != nil {
			return storeErr(err)
		}
	}
	for i, j := range pack.Journeys {
		var journeyID string
		err := tx.QueryRow(ctx, `INSERT INTO journeys (slug, name, description, estimated_minutes, premium, featured, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (slug) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description, estimated_minutes=EXCLUDED.estimated_minutes, premium=EXCLUDED.premium, featured=EXCLUDED.featured, sort_order=EXCLUDED.sort_order
			RETURNING id`, j.Slug, j.Name, j.Description, j.EstimatedMinutes, j.Premium, j.Featured, i).Scan(&journeyID)
		if err != nil {
			return storeErr(err)
		}
		keep := make([]string, 0, len(j.Duas))
		for k, e := range j.Duas {
			if _, err := tx.Exec(ctx, `INSERT INTO journey_entries (journey_id, dua_id, slot, sort_order) VALUES ($1, $2, $3, $4)
				ON CONFLICT (journey_id, dua_id) DO UPDATE SET slot=EXCLUDED.slot, sort_order=EXCLUDED.sort_order`, journeyID, e.Dua, e.Slot, k); err != nil {
				return storeErr(err)
			}
			keep = append(keep, e.Dua)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM journey_entries WHERE journey_id=$1 AND dua_id != ALL($2)`, journeyID, keep); err != nil {
			return storeErr(err)
		}
	}
	return storeErr(tx.Commit(ctx))
}

func (s *Postgres) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, sort_order FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder); err != nil {
			return nil, storeErr(err)
		}
		res = append(res, c)
	}
	return res, storeErr(rows.Err())
}

func (s *Postgres) ListDuas(ctx context.Context, categoryID string) ([]models.Dua, error) {
	query := `SELECT ` + duaCols + ` FROM duas ORDER BY category_id, id`
	args := []any{}
	if categoryID != "" {
		query = `SELECT ` + duaCols + ` FROM duas WHERE category_id=$1 ORDER BY id`
		args = append(args, categoryID)
	}
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.Dua
	for rows.Next() {
		d, err := scanDua(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		res = append(res, d)
	}
	return res, storeErr(rows.Err())
}

func (s *Postgres) GetDua(ctx context.Context, id string) (models.Dua, error) {
	d, err := scanDua(s.Pool.QueryRow(ctx, `SELECT `+duaCols+` FROM duas WHERE id=$1`, id))
	if err != nil {
		return models.Dua{}, storeErr(err)
	}
	return d, nil
}

func (s *Postgres) ListJourneys(ctx context.Context) ([]models.Journey, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, slug, name, description, estimated_minutes, premium, featured, sort_order FROM journeys ORDER BY sort_order, slug`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.Journey
	for rows.Next() {
		var j models.Journey
		if err := rows.Scan(&j.ID, &j.Slug, &j.Name, &j.Description, &j.EstimatedMinutes, &j.Premium, &j.Featured, &j.SortOrder); err != nil {
			return nil, storeErr(err)
		}
		res = append(res, j)
	}
	return res, storeErr(rows.Err())
}

func (s *Postgres) GetJourney(ctx context.Context, id string) (models.Journey, error) {
	var j models.Journey
	err := s.Pool.QueryRow(ctx, `SELECT id, slug, name, description, estimated_minutes, premium, featured, sort_order FROM journeys WHERE id=$1`, id).Scan(&j.ID, &j.Slug, &j.Name, &j.Description, &j.EstimatedMinutes, &j.Premium, &j.Featured, &j.SortOrder)
	if err != nil {
		return models.Journey{}, storeErr(err)
	}
	return j, nil
}

func (s *Postgres) GetJourneyBySlug(ctx context.Context, slug string) (models.Journey, error) {
	var j models.Journey
	err := s.Pool.QueryRow(ctx, `SELECT id, slug, name, description, estimated_minutes, premium, featured, sort_order FROM journeys WHERE slug=$1`, slug).Scan(&j.ID, &j.Slug, &j.Name, &j.Description, &j.EstimatedMinutes, &j.Premium, &j.Featured, &j.SortOrder)
	if err != nil {
		return models.Journey{}, storeErr(err)
	}
	return j, nil
}

func (s *Postgres) GetJourneyEntry(ctx context.Context, id string) (models.JourneyEntry, error) {
	e, err := scanEntry(s.Pool.QueryRow(ctx, `SELECT `+entryCols+` FROM journey_entries e JOIN duas d ON d.id=e.dua_id WHERE e.id=$1`, id))
	if err != nil {
		return models.JourneyEntry{}, storeErr(err)
	}
	return e, nil
}

func (s *Postgres) ListJourneyEntries(ctx context.Context, journeyIDs []string) ([]models.JourneyEntry, error) {
	if len(journeyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+entryCols+` FROM journey_entries e JOIN duas d ON d.id=e.dua_id WHERE e.journey_id = ANY($1) ORDER BY e.journey_id, e.sort_order`, journeyIDs)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.JourneyEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		res = append(res, e)
	}
	return res, storeErr(rows.Err())
}

func (s *Postgres) ListSubscribedJourneys(ctx context.Context, userID string) ([]models.Journey, error) {
	rows, err := s.Pool.Query(ctx, `SELECT j.id, j.slug, j.name, j.description, j.estimated_minutes, j.premium, j.featured, j.sort_order
		FROM journey_subscriptions sub JOIN journeys j ON j.id=sub.journey_id
		WHERE sub.user_id=$1 ORDER BY j.sort_order, j.slug`, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.Journey
	for rows.Next() {
		var j models.Journey
		if err := rows.Scan(&j.ID, &j.Slug, &j.Name, &j.Description, &j.EstimatedMinutes, &j.Premium, &j.Featured, &j.SortOrder); err != nil {
			return nil, storeErr(err)
		}
		res = append(res, j)
	}
	return res, storeErr(rows.Err())
}

func (s *Postgres) Subscribe(ctx context.Context, userID, journeyID string) (models.JourneySubscription, bool, error) {
	tag, err := s.Pool.Exec(ctx, `INSERT INTO journey_subscriptions (user_id, journey_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, journeyID)
	if err != nil {
		return models.JourneySubscription{}, false, storeErr(err)
	}
	var sub models.JourneySubscription
	err = s.Pool.QueryRow(ctx, `SELECT user_id, journey_id, subscribed_at FROM journey_subscriptions WHERE user_id=$1 AND journey_id=$2`, userID, journeyID).Scan(&sub.UserID, &sub.JourneyID, &sub.SubscribedAt)
	if err != nil {
		return models.JourneySubscription{}, false, storeErr(err)
	}
	return sub, tag.RowsAffected() > 0, nil
}

func (s *Postgres) Unsubscribe(ctx context.Context, userID, journeyID string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM journey_subscriptions WHERE user_id=$1 AND journey_id=$2`, userID, journeyID)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListCustomHabits(ctx context.Context, userID string) ([]models.CustomHabit, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, user_id, dua_id, slot, position, created_at, removed_at FROM custom_habits WHERE user_id=$1 AND removed_at IS NULL ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.CustomHabit
	for rows.Next() {
		h, err := scanCustomHabit(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		res = append(res, h)
	}
	return res, storeErr(rows.Err())
}

func (s *Postgres) GetCustomHabit(ctx context.Context, id string) (models.CustomHabit, error) {
	h, err := scanCustomHabit(s.Pool.QueryRow(ctx, `SELECT id, user_id, dua_id, slot, position, created_at, removed_at FROM custom_habits WHERE id=$1`, id))
	if err != nil {
		return models.CustomHabit{}, storeErr(err)
	}
	return h, nil
}

func (s *Postgres) AddCustomHabit(ctx context.Context, userID, duaID string, slot models.TimeSlot, position *int) (models.CustomHabit, bool, error) {
	h := models.CustomHabit{UserID: userID, DuaID: duaID, Slot: slot, Position: position}
	err := s.Pool.QueryRow(ctx, `INSERT INTO custom_habits (user_id, dua_id, slot, position) VALUES ($1, $2, $3, $4) RETURNING id, created_at`, userID, duaID, string(slot), position).Scan(&h.ID, &h.CreatedAt)
	if err == nil {
		return h, true, nil
	}
	if !errors.Is(storeErr(err), ErrConflict) {
		return models.CustomHabit{}, false, storeErr(err)
	}
	existing, err := scanCustomHabit(s.Pool.QueryRow(ctx, `SELECT id, user_id, dua_id, slot, position, created_at, removed_at FROM custom_habits WHERE user_id=$1 AND dua_id=$2 AND removed_at IS NULL`, userID, duaID))
	if err != nil {
		return models.CustomHabit{}, false, storeErr(err)
	}
	return existing, false, nil
}

func (s *Postgres) RemoveCustomHabit(ctx context.Context, userID, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE custom_habits SET removed_at=now() WHERE id=$1 AND user_id=$2 AND removed_at IS NULL`, id, userID)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Complete(ctx context.Context, rec models.CompletionRecord, advance func(models.UserProfile) models.UserProfile) (models.CompletionRecord, models.UserProfile, bool, error) {
	fail := func(err error) (models.CompletionRecord, models.UserProfile, bool, error) {
		return models.CompletionRecord{}, models.UserProfile{}, false, storeErr(err)
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback(ctx)

	// The row lock serializes completions per user so two concurrent taps
	// cannot both read the same profile state.
	profile, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id=$1 FOR UPDATE`, rec.UserID))
	if err != nil {
		return fail(err)
	}

	stored, err := scanCompletion(tx.QueryRow(ctx, `INSERT INTO completions (id, user_id, habit_id, day, xp_awarded, completed_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, habit_id, day) DO NOTHING
		RETURNING `+completionCols, rec.ID, rec.UserID, rec.HabitID, string(rec.Day), rec.XPAwarded, rec.CompletedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		// Already completed that day; hand back the original record and
		// leave the profile untouched.
		existing, err := scanCompletion(tx.QueryRow(ctx, `SELECT `+completionCols+` FROM completions WHERE user_id=$1 AND habit_id=$2 AND day=$3`, rec.UserID, rec.HabitID, string(rec.Day)))
		if err != nil {
			return fail(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fail(err)
		}
		return existing, profile, false, nil
	}
	if err != nil {
		return fail(err)
	}

	next := advance(profile)
	err = tx.QueryRow(ctx, `UPDATE profiles SET streak=$2, total_xp=$3, level=$4, last_active_date=$5, updated_at=now() WHERE user_id=$1 RETURNING updated_at`,
		rec.UserID, next.Streak, next.TotalXP, next.Level, dayParam(next.LastActiveDate)).Scan(&next.UpdatedAt)
	if err != nil {
		return fail(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(err)
	}
	return stored, next, true, nil
}

func (s *Postgres) ListCompletions(ctx context.Context, userID string, from, to models.Day) ([]models.CompletionRecord, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+completionCols+` FROM completions WHERE user_id=$1 AND day >= $2 AND day <= $3 ORDER BY day, completed_at`, userID, string(from), string(to))
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	var res []models.CompletionRecord
	for rows.Next() {
		rec, err := scanCompletion(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		res = append(res, rec)
	}
	return res, storeErr(rows.Err())
}
