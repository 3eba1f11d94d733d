// Package progression holds the XP, level and streak arithmetic. Everything
// here is pure: callers load the profile, apply a function, persist the
// result. Level is recomputed from total XP on every write so the two can
// never drift apart.
package progression

import "duahabit/internal/models"

// XPForLevel returns the cumulative XP at which a level is reached.
// The curve is quadratic: level 2 at 300 XP, level 3 at 600, level 4 at 1000.
func XPForLevel(level int) int {
	if level < 1 {
		return 0
	}
	return 50 * level * (level + 1)
}

// LevelForXP returns the level implied by a total XP amount: the largest
// level whose threshold has been met, never below 1.
func LevelForXP(totalXP int) int {
	level := 1
	for XPForLevel(level+1) <= totalXP {
		level++
	}
	return level
}

// XPToNextLevel returns how much XP is still missing for the next level.
func XPToNextLevel(totalXP int) int {
	return XPForLevel(LevelForXP(totalXP)+1) - totalXP
}

// StreakExpired reports whether a streak has lapsed by today: the last
// activity was before yesterday. A last-active day of today, yesterday, or
// in the future (possible when devices disagree on the date) keeps the
// streak alive. Never-active profiles have nothing to expire.
func StreakExpired(lastActive *models.Day, today models.Day) bool {
	if lastActive == nil || !lastActive.Before(today) {
		return false
	}
	return *lastActive != today.Prev()
}

// ApplyCompletion folds one completion into the profile. XP always
// accumulates and the level is rederived. The streak moves by at most one
// per calendar day: a repeat completion on the last active day changes
// nothing, a completion on the following day extends the streak, and any
// larger gap starts a new run at 1. A completion dated before the last
// active day still earns XP but never rewinds activity or the streak.
func ApplyCompletion(p models.UserProfile, xpAwarded int, day models.Day) models.UserProfile {
	if xpAwarded > 0 {
		p.TotalXP += xpAwarded
	}
	p.Level = LevelForXP(p.TotalXP)

	last := p.LastActiveDate
	switch {
	case last != nil && !last.Before(day):
		// Same day or backdated: streak and last activity stay put.
	case last != nil && *last == day.Prev():
		p.Streak++
		d := day
		p.LastActiveDate = &d
	default:
		p.Streak = 1
		d := day
		p.LastActiveDate = &d
	}
	return p
}
