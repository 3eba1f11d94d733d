package practice

import (
	"context"
	"sort"

	"duahabit/internal/models"
)

// Custom habits without an explicit position land after every journey habit
// in their slot. The offset just has to clear any realistic journey size.
const unpinned = 1 << 20

type rankedHabit struct {
	habit models.Habit
	pos   int
	seq   int
}

// resolve builds the user's due set for a day: the entries of every journey
// they subscribe to plus their own custom habits, grouped by slot. A dua
// that appears both through a journey and as a custom habit shows up once,
// as the journey habit. It also returns the day's completion records, which
// both the Done flags and the progress rollup are derived from.
func (e *Engine) resolve(ctx context.Context, userID string, day models.Day) (models.GroupedHabits, []models.CompletionRecord, error) {
	fail := func(err error) (models.GroupedHabits, []models.CompletionRecord, error) {
		return models.GroupedHabits{}, nil, err
	}
	if _, err := e.Store.GetProfile(ctx, userID); err != nil {
		return fail(err)
	}

	journeys, err := e.Store.ListSubscribedJourneys(ctx, userID)
	if err != nil {
		return fail(err)
	}
	ids := make([]string, len(journeys))
	for i, j := range journeys {
		ids[i] = j.ID
	}
	entries, err := e.Store.ListJourneyEntries(ctx, ids)
	if err != nil {
		return fail(err)
	}
	customs, err := e.Store.ListCustomHabits(ctx, userID)
	if err != nil {
		return fail(err)
	}
	recs, err := e.Store.ListCompletions(ctx, userID, day, day)
	if err != nil {
		return fail(err)
	}

	done := make(map[string]bool, len(recs))
	for _, rec := range recs {
		done[rec.HabitID] = true
	}

	byJourney := make(map[string][]models.JourneyEntry, len(journeys))
	for _, entry := range entries {
		byJourney[entry.JourneyID] = append(byJourney[entry.JourneyID], entry)
	}

	slots := make(map[models.TimeSlot][]rankedHabit)
	slotPos := make(map[models.TimeSlot]int)
	seenDua := make(map[string]bool)
	seq := 0

	// Journeys come first, in catalog order, each keeping its own entry
	// order within a slot.
	for _, j := range journeys {
		for _, entry := range byJourney[j.ID] {
			if seenDua[entry.Dua.ID] {
				continue
			}
			seenDua[entry.Dua.ID] = true
			slots[entry.Slot] = append(slots[entry.Slot], rankedHabit{
				habit: models.Habit{
					ID:          entry.ID,
					Dua:         entry.Dua,
					Slot:        entry.Slot,
					Source:      models.SourceJourney,
					JourneyID:   j.ID,
					JourneySlug: j.Slug,
					Done:        done[entry.ID],
				},
				pos: slotPos[entry.Slot],
				seq: seq,
			})
			slotPos[entry.Slot]++
			seq++
		}
	}

	var duas map[string]models.Dua
	if len(customs) > 0 {
		all, err := e.Store.ListDuas(ctx, "")
		if err != nil {
			return fail(err)
		}
		duas = make(map[string]models.Dua, len(all))
		for _, d := range all {
			duas[d.ID] = d
		}
	}
	for i, c := range customs {
		if seenDua[c.DuaID] {
			continue
		}
		dua, ok := duas[c.DuaID]
		if !ok {
			continue
		}
		seenDua[c.DuaID] = true
		pos := unpinned + i
		if c.Position != nil {
			pos = *c.Position
		}
		slots[c.Slot] = append(slots[c.Slot], rankedHabit{
			habit: models.Habit{
				ID:        c.ID,
				Dua:       dua,
				Slot:      c.Slot,
				Source:    models.SourceCustom,
				Removable: true,
				Done:      done[c.ID],
			},
			pos: pos,
			seq: seq,
		})
		seq++
	}

	grouped := models.GroupedHabits{Date: day}
	for _, slot := range models.Slots() {
		ranked := slots[slot]
		sort.SliceStable(ranked, func(i, k int) bool {
			if ranked[i].pos != ranked[k].pos {
				return ranked[i].pos < ranked[k].pos
			}
			return ranked[i].seq < ranked[k].seq
		})
		habits := make([]models.Habit, len(ranked))
		for i, r := range ranked {
			habits[i] = r.habit
		}
		switch slot {
		case models.SlotMorning:
			grouped.Morning = habits
		case models.SlotAnytime:
			grouped.Anytime = habits
		case models.SlotEvening:
			grouped.Evening = habits
		}
	}
	return grouped, recs, nil
}

// Habits returns the day's due habits grouped into morning, anytime and
// evening. An empty result is fine, a brand new user simply has nothing due.
func (e *Engine) Habits(ctx context.Context, userID string, day models.Day) (models.GroupedHabits, error) {
	grouped, _, err := e.resolve(ctx, userID, day)
	return grouped, err
}
