package models

import (
	"time"
)

// ActivityRecord holds one member's message counts for a single cycle.
type ActivityRecord struct {
	UserID         string         `json:"userId"`
	Username       string         `json:"username"`
	DisplayName    string         `json:"displayName"`
	Roles          []string       `json:"roles"`
	JoinedAt       *time.Time     `json:"joinedAt,omitempty"`
	Activity       map[string]int `json:"activity"`
	TotalMessages  int            `json:"totalMessages"`
	FirstMessageAt *time.Time     `json:"firstMessageDate"`
	LastMessageAt  *time.Time     `json:"lastMessageDate"`
}

// NewActivityRecord starts an empty record for a member.
func NewActivityRecord(m Member) *ActivityRecord {
	return &ActivityRecord{
		UserID:      m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Roles:       m.Roles,
		JoinedAt:    m.JoinedAt,
		Activity:    map[string]int{},
	}
}

// Add counts one message in category and widens the first/last window.
func (r *ActivityRecord) Add(category string, at time.Time) {
	r.Activity[category]++
	r.TotalMessages++

	if r.FirstMessageAt == nil || at.Before(*r.FirstMessageAt) {
		t := at
		r.FirstMessageAt = &t
	}
	if r.LastMessageAt == nil || at.After(*r.LastMessageAt) {
		t := at
		r.LastMessageAt = &t
	}
}

// Count returns the number of messages in category, zero if absent.
func (r *ActivityRecord) Count(category string) int {
	return r.Activity[category]
}

// Consistent reports whether the total equals the sum of the category counts
// and the first message does not come after the last one.
func (r *ActivityRecord) Consistent() bool {
	sum := 0
	for _, n := range r.Activity {
		if n < 0 {
			return false
		}
		sum += n
	}
	if sum != r.TotalMessages {
		return false
	}
	if r.FirstMessageAt != nil && r.LastMessageAt != nil && r.FirstMessageAt.After(*r.LastMessageAt) {
		return false
	}
	return true
}
