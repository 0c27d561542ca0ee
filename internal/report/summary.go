package report

import (
	"time"

	"member-activity/internal/models"
)

// Generator sizes the rankings built for each cycle.
type Generator struct {
	LeaderboardSize int
	ReportSize      int
	TopContributors int
}

// Summary is everything a cycle's reports are rendered from.
type Summary struct {
	GeneratedAt  time.Time
	Members      []models.Member
	Records      []*models.ActivityRecord
	Categories   []string
	Leaderboards map[string][]Entry
	Overall      []Entry

	reportSize      int
	topContributors int
}

// Build ranks records for every observed category. order puts known
// categories first; categories nobody posted in are dropped.
func (g Generator) Build(now time.Time, members []models.Member, records []*models.ActivityRecord, order []string) *Summary {
	cats := orderedCategories(order, Categories(records))

	s := &Summary{
		GeneratedAt:     now,
		Members:         members,
		Records:         records,
		Categories:      cats,
		Leaderboards:    make(map[string][]Entry, len(cats)),
		Overall:         RankTotal(records, g.LeaderboardSize),
		reportSize:      g.ReportSize,
		topContributors: g.TopContributors,
	}
	for _, c := range cats {
		s.Leaderboards[c] = Rank(records, c, g.LeaderboardSize)
	}
	return s
}

func orderedCategories(order, observed []string) []string {
	have := make(map[string]bool, len(observed))
	for _, c := range observed {
		have[c] = true
	}
	used := map[string]bool{}
	var out []string
	for _, c := range order {
		if have[c] && !used[c] {
			used[c] = true
			out = append(out, c)
		}
	}
	for _, c := range observed {
		if !used[c] {
			used[c] = true
			out = append(out, c)
		}
	}
	return out
}
