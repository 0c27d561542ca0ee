package report

import (
	"sort"

	"member-activity/internal/models"
)

// TotalCategory names the overall ranking by total messages.
const TotalCategory = models.TotalCategory

type Entry struct {
	Rank        int      `json:"rank"`
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	Count       int      `json:"count"`
}

// Rank orders members by their count in category, highest first. Members
// with no messages there are left out; ties keep input order.
func Rank(records []*models.ActivityRecord, category string, limit int) []Entry {
	return rank(records, limit, func(r *models.ActivityRecord) int { return r.Count(category) })
}

// RankTotal orders members by total messages.
func RankTotal(records []*models.ActivityRecord, limit int) []Entry {
	return rank(records, limit, func(r *models.ActivityRecord) int { return r.TotalMessages })
}

func rank(records []*models.ActivityRecord, limit int, count func(*models.ActivityRecord) int) []Entry {
	var picked []*models.ActivityRecord
	for _, r := range records {
		if count(r) > 0 {
			picked = append(picked, r)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return count(picked[i]) > count(picked[j])
	})
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}

	entries := make([]Entry, len(picked))
	for i, r := range picked {
		entries[i] = Entry{
			Rank:        i + 1,
			UserID:      r.UserID,
			Username:    r.Username,
			DisplayName: r.DisplayName,
			Roles:       r.Roles,
			Count:       count(r),
		}
	}
	return entries
}

// Categories returns every category with activity, in first-seen order.
// Within one record the keys are visited in sorted order.
func Categories(records []*models.ActivityRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		keys := make([]string, 0, len(r.Activity))
		for c := range r.Activity {
			keys = append(keys, c)
		}
		sort.Strings(keys)
		for _, c := range keys {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
