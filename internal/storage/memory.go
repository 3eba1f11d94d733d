package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"duahabit/internal/catalog"
	"duahabit/internal/models"
)

// Memory is an in-process Store used by tests and by local runs without a
// database. One mutex guards everything, which also gives Complete its
// per-user serialization for free.
type Memory struct {
	mu sync.RWMutex

	users    map[string]models.User
	byEmail  map[string]string
	sessions map[string]models.Session

	profiles map[string]models.UserProfile

	categories []models.Category
	duas       map[string]models.Dua
	journeys   map[string]models.Journey
	bySlug     map[string]string
	entries    map[string]models.JourneyEntry
	entryIDs   map[string]string // journeyID+"/"+duaID, stable across reseeds

	subs    map[string]map[string]models.JourneySubscription
	customs map[string]models.CustomHabit

	completions map[string]models.CompletionRecord
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]models.User),
		byEmail:     make(map[string]string),
		sessions:    make(map[string]models.Session),
		profiles:    make(map[string]models.UserProfile),
		duas:        make(map[string]models.Dua),
		journeys:    make(map[string]models.Journey),
		bySlug:      make(map[string]string),
		entries:     make(map[string]models.JourneyEntry),
		entryIDs:    make(map[string]string),
		subs:        make(map[string]map[string]models.JourneySubscription),
		customs:     make(map[string]models.CustomHabit),
		completions: make(map[string]models.CompletionRecord),
	}
}

var _ Store = (*Memory)(nil)

func completionKey(userID, habitID string, day models.Day) string {
	return userID + "|" + habitID + "|" + string(day)
}

func (m *Memory) CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return models.User{}, ErrConflict
	}
	u := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	m.byEmail[email] = u.ID
	return u, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *Memory) GetSession(ctx context.Context, token string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[token]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return models.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *Memory) EnsureProfile(ctx context.Context, userID, displayName string) (models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	now := time.Now()
	p := models.UserProfile{
		UserID:      userID,
		DisplayName: displayName,
		Level:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.profiles[userID] = p
	return p, nil
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return models.UserProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ResetStreak(ctx context.Context, userID string) (models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return models.UserProfile{}, ErrNotFound
	}
	p.Streak = 0
	p.UpdatedAt = time.Now()
	m.profiles[userID] = p
	return p, nil
}

func (m *Memory) UpdateDisplayName(ctx context.Context, userID, displayName string) (models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return models.UserProfile{}, ErrNotFound
	}
	if u, ok := m.users[userID]; ok {
		u.DisplayName = displayName
		m.users[userID] = u
	}
	p.DisplayName = displayName
	p.UpdatedAt = time.Now()
	m.profiles[userID] = p
	return p, nil
}

func (m *Memory) SeedCatalog(ctx context.Context, pack catalog.Pack) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.categories = m.categories[:0]
	for i, c := range pack.Categories {
		m.categories = append(m.categories, models.Category{ID: c.ID, Name: c.Name, SortOrder: i})
	}
	for _, d := range pack.Duas {
		m.duas[d.ID] = models.Dua{
			ID:              d.ID,
			CategoryID:      d.Category,
			Title:           d.Title,
			Arabic:          d.Arabic,
			Transliteration: d.Transliteration,
			Translation:     d.Translation,
			Source:          d.Source,
			Repetitions:     d.Repetitions,
			RecommendedSlot: models.TimeSlot(d.Slot),
			Difficulty:      d.Difficulty,
			XP:              d.XP,
		}
	}
	for i, j := range pack.Journeys {
		id, ok := m.bySlug[j.Slug]
		if !ok {
			id = uuid.NewString()
			m.bySlug[j.Slug] = id
		}
		m.journeys[id] = models.Journey{
			ID:               id,
			Slug:             j.Slug,
			Name:             j.Name,
			Description:      j.Description,
			EstimatedMinutes: j.EstimatedMinutes,
			Premium:          j.Premium,
			Featured:         j.Featured,
			SortOrder:        i,
		}
		keep := make(map[string]bool, len(j.Duas))
		for k, e := range j.Duas {
			keep[e.Dua] = true
			key := id + "/" + e.Dua
			entryID, ok := m.entryIDs[key]
			if !ok {
				entryID = uuid.NewString()
				m.entryIDs[key] = entryID
			}
			m.entries[entryID] = models.JourneyEntry{
				ID:        entryID,
				JourneyID: id,
				Slot:      models.TimeSlot(e.Slot),
				SortOrder: k,
				Dua:       m.duas[e.Dua],
			}
		}
		for key, entryID := range m.entryIDs {
			if !strings.HasPrefix(key, id+"/") {
				continue
			}
			if !keep[strings.TrimPrefix(key, id+"/")] {
				delete(m.entries, entryID)
				delete(m.entryIDs, key)
			}
		}
	}
	return nil
}

func (m *Memory) ListCategories(ctx context.Context) ([]models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]models.Category, len(m.categories))
	copy(res, m.categories)
	return res, nil
}

func (m *Memory) ListDuas(ctx context.Context, categoryID string) ([]models.Dua, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []models.Dua
	for _, d := range m.duas {
		if categoryID != "" && d.CategoryID != categoryID {
			continue
		}
		res = append(res, d)
	}
	sort.Slice(res, func(i, k int) bool {
		if res[i].CategoryID != res[k].CategoryID {
			return res[i].CategoryID < res[k].CategoryID
		}
		return res[i].ID < res[k].ID
	})
	return res, nil
}

func (m *Memory) GetDua(ctx context.Context, id string) (models.Dua, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.duas[id]
	if !ok {
		return models.Dua{}, ErrNotFound
	}
	return d, nil
}

func sortJourneys(res []models.Journey) {
	sort.Slice(res, func(i, k int) bool {
		if res[i].SortOrder != res[k].SortOrder {
			return res[i].SortOrder < res[k].SortOrder
		}
		return res[i].Slug < res[k].Slug
	})
}

func (m *Memory) ListJourneys(ctx context.Context) ([]models.Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]models.Journey, 0, len(m.journeys))
	for _, j := range m.journeys {
		res = append(res, j)
	}
	sortJourneys(res)
	return res, nil
}

func (m *Memory) GetJourney(ctx context.Context, id string) (models.Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.journeys[id]
	if !ok {
		return models.Journey{}, ErrNotFound
	}
	return j, nil
}

func (m *Memory) GetJourneyBySlug(ctx context.Context, slug string) (models.Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySlug[slug]
	if !ok {
		return models.Journey{}, ErrNotFound
	}
	return m.journeys[id], nil
}

func (m *Memory) GetJourneyEntry(ctx context.Context, id string) (models.JourneyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return models.JourneyEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListJourneyEntries(ctx context.Context, journeyIDs []string) ([]models.JourneyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(journeyIDs))
	for _, id := range journeyIDs {
		want[id] = true
	}
	var res []models.JourneyEntry
	for _, e := range m.entries {
		if want[e.JourneyID] {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, k int) bool {
		if res[i].JourneyID != res[k].JourneyID {
			return res[i].JourneyID < res[k].JourneyID
		}
		return res[i].SortOrder < res[k].SortOrder
	})
	return res, nil
}

func (m *Memory) ListSubscribedJourneys(ctx context.Context, userID string) ([]models.Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []models.Journey
	for journeyID := range m.subs[userID] {
		if j, ok := m.journeys[journeyID]; ok {
			res = append(res, j)
		}
	}
	sortJourneys(res)
	return res, nil
}

func (m *Memory) Subscribe(ctx context.Context, userID, journeyID string) (models.JourneySubscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.journeys[journeyID]; !ok {
		return models.JourneySubscription{}, false, ErrNotFound
	}
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[string]models.JourneySubscription)
	}
	if sub, ok := m.subs[userID][journeyID]; ok {
		return sub, false, nil
	}
	sub := models.JourneySubscription{UserID: userID, JourneyID: journeyID, SubscribedAt: time.Now()}
	m.subs[userID][journeyID] = sub
	return sub, true, nil
}

func (m *Memory) Unsubscribe(ctx context.Context, userID, journeyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[userID][journeyID]; !ok {
		return ErrNotFound
	}
	delete(m.subs[userID], journeyID)
	return nil
}

func (m *Memory) ListCustomHabits(ctx context.Context, userID string) ([]models.CustomHabit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []models.CustomHabit
	for _, h := range m.customs {
		if h.UserID == userID && h.RemovedAt == nil {
			res = append(res, h)
		}
	}
	sort.Slice(res, func(i, k int) bool {
		if !res[i].CreatedAt.Equal(res[k].CreatedAt) {
			return res[i].CreatedAt.Before(res[k].CreatedAt)
		}
		return res[i].ID < res[k].ID
	})
	return res, nil
}

func (m *Memory) GetCustomHabit(ctx context.Context, id string) (models.CustomHabit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.customs[id]
	if !ok {
		return models.CustomHabit{}, ErrNotFound
	}
	return h, nil
}

func (m *Memory) AddCustomHabit(ctx context.Context, userID, duaID string, slot models.TimeSlot, position *int) (models.CustomHabit, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.duas[duaID]; !ok {
		return models.CustomHabit{}, false, ErrNotFound
	}
	for _, h := range m.customs {
		if h.UserID == userID && h.DuaID == duaID && h.RemovedAt == nil {
			return h, false, nil
		}
	}
	h := models.CustomHabit{
		ID:        uuid.NewString(),
		UserID:    userID,
		DuaID:     duaID,
		Slot:      slot,
		CreatedAt: time.Now(),
	}
	if position != nil {
		p := *position
		h.Position = &p
	}
	m.customs[h.ID] = h
	return h, true, nil
}

func (m *Memory) RemoveCustomHabit(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.customs[id]
	if !ok || h.UserID != userID || h.RemovedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	h.RemovedAt = &now
	m.customs[id] = h
	return nil
}

func (m *Memory) Complete(ctx context.Context, rec models.CompletionRecord, advance func(models.UserProfile) models.UserProfile) (models.CompletionRecord, models.UserProfile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[rec.UserID]
	if !ok {
		return models.CompletionRecord{}, models.UserProfile{}, false, ErrNotFound
	}
	key := completionKey(rec.UserID, rec.HabitID, rec.Day)
	if existing, ok := m.completions[key]; ok {
		return existing, profile, false, nil
	}
	next := advance(profile)
	next.UpdatedAt = time.Now()
	m.completions[key] = rec
	m.profiles[rec.UserID] = next
	return rec, next, true, nil
}

func (m *Memory) ListCompletions(ctx context.Context, userID string, from, to models.Day) ([]models.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []models.CompletionRecord
	for _, rec := range m.completions {
		if rec.UserID != userID || rec.Day.Before(from) || to.Before(rec.Day) {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, k int) bool {
		if res[i].Day != res[k].Day {
			return res[i].Day.Before(res[k].Day)
		}
		return res[i].CompletedAt.Before(res[k].CompletedAt)
	})
	return res, nil
}
