package practice

import (
	"context"

	"duahabit/internal/models"
)

// Progress rolls the day up into one card: how much of the plan is done,
// the XP earned so far, and the next habit to go for. Earned XP counts
// every completion written for the day, including off-plan ones, while the
// completed counter only tracks the due set.
func (e *Engine) Progress(ctx context.Context, userID string, day models.Day) (models.DailyProgress, error) {
	grouped, recs, err := e.resolve(ctx, userID, day)
	if err != nil {
		return models.DailyProgress{}, err
	}

	all := grouped.All()
	completed := 0
	for _, h := range all {
		if h.Done {
			completed++
		}
	}
	earned := 0
	for _, rec := range recs {
		earned += rec.XPAwarded
	}

	progress := models.DailyProgress{
		Date:          day,
		Total:         len(all),
		Completed:     completed,
		EarnedXPToday: earned,
		AllCompleted:  len(all) > 0 && completed == len(all),
	}
	if progress.Total > 0 {
		progress.Percentage = float64(completed) / float64(progress.Total) * 100
	}
	for i := range all {
		if !all[i].Done {
			next := all[i]
			progress.NextHabit = &next
			break
		}
	}
	return progress, nil
}

// Stats summarizes the trailing window ending at to: completions and XP per
// day, plus how many of those days saw any practice at all.
func (e *Engine) Stats(ctx context.Context, userID string, to models.Day, days int) (models.PracticeStats, error) {
	if days < 1 {
		days = 1
	}
	if _, err := e.Store.GetProfile(ctx, userID); err != nil {
		return models.PracticeStats{}, err
	}
	from := to.AddDays(-(days - 1))
	recs, err := e.Store.ListCompletions(ctx, userID, from, to)
	if err != nil {
		return models.PracticeStats{}, err
	}

	counts := make(map[models.Day]int)
	xp := make(map[models.Day]int)
	total := 0
	for _, rec := range recs {
		counts[rec.Day]++
		xp[rec.Day] += rec.XPAwarded
		total += rec.XPAwarded
	}

	stats := models.PracticeStats{From: from, To: to, EarnedXP: total}
	for d := from; !to.Before(d); d = d.AddDays(1) {
		stat := models.DayStat{Date: d, Completed: counts[d], XP: xp[d]}
		if stat.Completed > 0 {
			stats.ActiveDays++
		}
		stats.Days = append(stats.Days, stat)
	}
	return stats, nil
}
