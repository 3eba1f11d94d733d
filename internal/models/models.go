package models

import "time"

// TimeSlot buckets habits within a day.
type TimeSlot string

const (
	SlotMorning TimeSlot = "morning"
	SlotAnytime TimeSlot = "anytime"
	SlotEvening TimeSlot = "evening"
)

func (s TimeSlot) Valid() bool {
	return s == SlotMorning || s == SlotAnytime || s == SlotEvening
}

// Slots returns the slots in display order.
func Slots() []TimeSlot {
	return []TimeSlot{SlotMorning, SlotAnytime, SlotEvening}
}

// HabitSource says where a resolved habit came from.
type HabitSource string

const (
	SourceJourney HabitSource = "journey"
	SourceCustom  HabitSource = "custom"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// Dua is a single recitation from the content catalog. Catalog rows are
// read-only at runtime; they change only through reseeding.
type Dua struct {
	ID              string   `json:"id"`
	CategoryID      string   `json:"category_id"`
	Title           string   `json:"title"`
	Arabic          string   `json:"arabic"`
	Transliteration string   `json:"transliteration"`
	Translation     string   `json:"translation"`
	Source          string   `json:"source"`
	Repetitions     int      `json:"repetitions"`
	RecommendedSlot TimeSlot `json:"recommended_slot"`
	Difficulty      string   `json:"difficulty"`
	XP              int      `json:"xp"`
}

type Journey struct {
	ID               string `json:"id"`
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Premium          bool   `json:"premium"`
	Featured         bool   `json:"featured"`
	SortOrder        int    `json:"sort_order"`
}

// JourneyEntry places a dua inside a journey. The entry id doubles as the
// habit id for journey-sourced habits and stays stable across reseeds.
type JourneyEntry struct {
	ID        string   `json:"id"`
	JourneyID string   `json:"journey_id"`
	Slot      TimeSlot `json:"slot"`
	SortOrder int      `json:"sort_order"`
	Dua       Dua      `json:"dua"`
}

type JourneySubscription struct {
	UserID       string    `json:"user_id"`
	JourneyID    string    `json:"journey_id"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// CustomHabit is a dua the user added from the library outside any journey.
// Removal is soft so old completion records keep resolving.
type CustomHabit struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	DuaID     string     `json:"dua_id"`
	Slot      TimeSlot   `json:"slot"`
	Position  *int       `json:"position,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// UserProfile carries progression state. Level is always derived from
// TotalXP and TotalXP never decreases.
type UserProfile struct {
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Streak         int       `json:"streak"`
	TotalXP        int       `json:"total_xp"`
	Level          int       `json:"level"`
	LastActiveDate *Day      `json:"last_active_date"`
	IsAdmin        bool      `json:"is_admin"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CompletionRecord marks one habit done on one day. XPAwarded is captured
// when the record is written and never recomputed, so later catalog edits
// cannot change past totals. At most one record exists per
// (user, habit, day).
type CompletionRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	HabitID     string    `json:"habit_id"`
	Day         Day       `json:"day"`
	XPAwarded   int       `json:"xp_awarded"`
	CompletedAt time.Time `json:"completed_at"`
}

// Habit is one resolved item of a user's daily practice.
type Habit struct {
	ID          string      `json:"id"`
	Dua         Dua         `json:"dua"`
	Slot        TimeSlot    `json:"slot"`
	Source      HabitSource `json:"source"`
	JourneyID   string      `json:"journey_id,omitempty"`
	JourneySlug string      `json:"journey_slug,omitempty"`
	Removable   bool        `json:"removable"`
	Done        bool        `json:"done"`
}

type GroupedHabits struct {
	Date    Day     `json:"date"`
	Morning []Habit `json:"morning"`
	Anytime []Habit `json:"anytime"`
	Evening []Habit `json:"evening"`
}

// All returns the habits in slot order: morning, anytime, evening.
func (g GroupedHabits) All() []Habit {
	out := make([]Habit, 0, len(g.Morning)+len(g.Anytime)+len(g.Evening))
	out = append(out, g.Morning...)
	out = append(out, g.Anytime...)
	out = append(out, g.Evening...)
	return out
}

type DailyProgress struct {
	Date          Day     `json:"date"`
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Percentage    float64 `json:"percentage"`
	EarnedXPToday int     `json:"earned_xp_today"`
	AllCompleted  bool    `json:"all_completed"`
	NextHabit     *Habit  `json:"next_habit"`
}

type DayStat struct {
	Date      Day `json:"date"`
	Completed int `json:"completed"`
	XP        int `json:"xp"`
}

type PracticeStats struct {
	From       Day       `json:"from"`
	To         Day       `json:"to"`
	Days       []DayStat `json:"days"`
	ActiveDays int       `json:"active_days"`
	EarnedXP   int       `json:"earned_xp"`
}
