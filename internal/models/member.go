package models

import "time"

// LeftServerRole tags authors that no longer appear in the member list.
const LeftServerRole = "[Left Server]"

// Member is a guild member as returned by the chat source.
type Member struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Roles       []string   `json:"roleNames"`
	IsBot       bool       `json:"isBot"`
	JoinedAt    *time.Time `json:"joinedAt"`
}

// Channel is a text-capable guild channel.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Message is the subset of a chat message the aggregator needs.
type Message struct {
	ID             string
	ChannelID      string
	AuthorID       string
	AuthorUsername string
	AuthorBot      bool
	CreatedAt      time.Time
}

// CategorySpec groups channels whose messages are counted together.
type CategorySpec struct {
	Name       string   `yaml:"name"`
	ChannelIDs []string `yaml:"channels"`
}
