package models

import (
	"time"

	"gorm.io/datatypes"
)

// MemberState is the durable per-member row, keyed by user id.
type MemberState struct {
	UserID         string                      `gorm:"primaryKey;size:32" json:"user_id"`
	Username       string                      `gorm:"not null" json:"username"`
	DisplayName    string                      `gorm:"not null" json:"display_name"`
	Roles          datatypes.JSONSlice[string] `json:"roles"`
	IsBot          bool                        `json:"is_bot"`
	JoinedAt       *time.Time                  `json:"joined_at"`
	TotalMessages  int                         `gorm:"index" json:"total_messages"`
	FirstMessageAt *time.Time                  `json:"first_message_at"`
	LastMessageAt  *time.Time                  `json:"last_message_at"`
	RoleBaseline   *float64                    `json:"role_baseline"`
	RoleComparison *float64                    `json:"role_comparison"`
	IsPromoted     *bool                       `json:"is_promoted"`
	Region         *string                     `gorm:"size:64" json:"region"`
	ExternalHandle *string                     `gorm:"size:64" json:"external_handle"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MemberState) TableName() string {
	return "members"
}

// Promoted reports the stored promotion flag, false when unset.
func (s MemberState) Promoted() bool {
	return s.IsPromoted != nil && *s.IsPromoted
}

// CategoryCount is one member's message count in one category.
type CategoryCount struct {
	UserID    string    `gorm:"primaryKey;size:32" json:"user_id"`
	Category  string    `gorm:"primaryKey;size:64" json:"category"`
	Count     int       `gorm:"not null" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CategoryCount) TableName() string {
	return "member_activity"
}

// TotalCategory selects the ranking by total messages instead of a category.
const TotalCategory = "total_messages"

// Standing is one row of a stored leaderboard.
type Standing struct {
	UserID      string
	Username    string
	DisplayName string
	Count       int
}

// StateFromUpdate builds the row inserted when the member does not exist yet.
// Absent and null sticky fields both become NULL on insert.
func StateFromUpdate(u MemberUpdate) MemberState {
	return MemberState{
		UserID:         u.UserID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		Roles:          datatypes.NewJSONSlice(nonNil(u.Roles)),
		IsBot:          u.IsBot,
		JoinedAt:       u.JoinedAt.Ptr(),
		TotalMessages:  u.TotalMessages,
		FirstMessageAt: u.FirstMessageAt,
		LastMessageAt:  u.LastMessageAt,
		RoleBaseline:   u.RoleBaseline.Ptr(),
		RoleComparison: u.RoleComparison.Ptr(),
		IsPromoted:     u.IsPromoted.Ptr(),
		Region:         u.Region.Ptr(),
		ExternalHandle: u.ExternalHandle.Ptr(),
	}
}

// CountsFromUpdate expands an update's activity map into rows.
func CountsFromUpdate(u MemberUpdate) []CategoryCount {
	rows := make([]CategoryCount, 0, len(u.Activity))
	for _, c := range u.Categories() {
		rows = append(rows, CategoryCount{UserID: u.UserID, Category: c, Count: u.Activity[c]})
	}
	return rows
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
