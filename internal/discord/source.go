package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"member-activity/internal/config"
	"member-activity/internal/models"
)

var (
	ErrNotFound    = errors.New("discord: not found")
	ErrRateLimited = errors.New("discord: rate limited")
)

const membersPageSize = 1000

// Source reads one guild over the Discord REST API.
type Source struct {
	session *discordgo.Session
	guildID string
	logger  *slog.Logger
}

func NewSource(cfg config.Discord, logger *slog.Logger) (*Source, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Client.Timeout = cfg.RequestTimeout
	session.ShouldRetryOnRateLimit = true
	return &Source{session: session, guildID: cfg.GuildID, logger: logger}, nil
}

// Authenticate checks the token and returns the bot's username.
func (s *Source) Authenticate(ctx context.Context) (string, error) {
	u, err := s.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", translate(err)
	}
	s.logger.Info("authorized on discord", "account", u.Username)
	return u.Username, nil
}

// Members lists every guild member with role ids resolved to names.
func (s *Source) Members(ctx context.Context) ([]models.Member, error) {
	roles, err := s.session.GuildRoles(s.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild roles: %w", translate(err))
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}

	var out []models.Member
	after := ""
	for {
		page, err := s.session.GuildMembers(s.guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("guild members after %q: %w", after, translate(err))
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			out = append(out, convertMember(m, names))
		}
		if len(page) < membersPageSize {
			break
		}
		after = page[len(page)-1].User.ID
		s.logger.Debug("fetching members", "fetched", len(out))
	}
	return out, nil
}

// TextChannels lists the guild's text and announcement channels.
func (s *Source) TextChannels(ctx context.Context) ([]models.Channel, error) {
	channels, err := s.session.GuildChannels(s.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild channels: %w", translate(err))
	}
	var out []models.Channel
	for _, ch := range channels {
		if isText(ch.Type) {
			out = append(out, models.Channel{ID: ch.ID, Name: ch.Name, ParentID: ch.ParentID})
		}
	}
	return out, nil
}

// ChannelMessages returns up to limit messages older than before, newest first.
func (s *Source) ChannelMessages(ctx context.Context, channelID, before string, limit int) ([]models.Message, error) {
	msgs, err := s.session.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		out = append(out, convertMessage(m))
	}
	return out, nil
}

func isText(t discordgo.ChannelType) bool {
	return t == discordgo.ChannelTypeGuildText || t == discordgo.ChannelTypeGuildNews
}

func convertMember(m *discordgo.Member, roleNames map[string]string) models.Member {
	roles := make([]string, 0, len(m.Roles))
	for _, id := range m.Roles {
		if name, ok := roleNames[id]; ok {
			roles = append(roles, name)
		}
	}
	member := models.Member{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: displayName(m),
		Roles:       roles,
		IsBot:       m.User.Bot,
	}
	if !m.JoinedAt.IsZero() {
		joined := m.JoinedAt.UTC()
		member.JoinedAt = &joined
	}
	return member
}

// displayName prefers the guild nickname, then the global name.
func displayName(m *discordgo.Member) string {
	switch {
	case m.Nick != "":
		return m.Nick
	case m.User.GlobalName != "":
		return m.User.GlobalName
	default:
		return m.User.Username
	}
}

func convertMessage(m *discordgo.Message) models.Message {
	return models.Message{
		ID:             m.ID,
		ChannelID:      m.ChannelID,
		AuthorID:       m.Author.ID,
		AuthorUsername: m.Author.Username,
		AuthorBot:      m.Author.Bot,
		CreatedAt:      m.Timestamp.UTC(),
	}
}

func translate(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, rl.RetryAfter.Round(time.Millisecond))
	}
	return err
}
