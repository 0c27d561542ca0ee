package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"member-activity/internal/models"
)

const defaultTop = 10

// Sender is the part of the bot API the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Standings answers leaderboard questions from stored state.
type Standings interface {
	Top(ctx context.Context, category string, limit int) ([]models.Standing, error)
	Promoted(ctx context.Context) ([]models.MemberState, error)
}

type MessageHandler struct {
	bot       Sender
	standings Standings
	logger    *slog.Logger
}

func NewMessageHandler(bot Sender, standings Standings, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{bot: bot, standings: standings, logger: logger}
}

func (h *MessageHandler) HandleMessage(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	text := h.handleCommand(ctx, update.Message.Command(), update.Message.CommandArguments())
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, text)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Warn("sending reply failed", "chat_id", update.Message.Chat.ID, "error", err)
	}
}

func (h *MessageHandler) handleCommand(ctx context.Context, command, args string) string {
	switch command {
	case "top":
		return h.handleTopCommand(ctx, args)
	case "promoted":
		return h.handlePromotedCommand(ctx)
	case "help", "start":
		return helpText
	}
	return ""
}

const helpText = `📊 Member activity bot
/top - overall leaderboard
/top <category> [n] - leaderboard for one category
/promoted - members promoted this week
/help - this message`

// handleTopCommand accepts "", "n", "category" or "category n".
func (h *MessageHandler) handleTopCommand(ctx context.Context, args string) string {
	category, limit := parseTopArgs(args)
	standings, err := h.standings.Top(ctx, category, limit)
	if err != nil {
		h.logger.Error("getting leaderboard failed", "category", category, "error", err)
		return "❌ Could not load the leaderboard."
	}

	title := "total messages"
	if category != "" {
		title = category
	}
	if len(standings) == 0 {
		return fmt.Sprintf("No activity recorded for %s yet.", title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌟 Leaderboard: %s\n", title)
	for i, s := range standings {
		fmt.Fprintf(&b, "%d. %s: %d\n", i+1, memberLabel(s.DisplayName, s.Username, s.UserID), s.Count)
	}
	return b.String()
}

func (h *MessageHandler) handlePromotedCommand(ctx context.Context) string {
	members, err := h.standings.Promoted(ctx)
	if err != nil {
		h.logger.Error("getting promoted members failed", "error", err)
		return "❌ Could not load promoted members."
	}
	if len(members) == 0 {
		return "Nobody was promoted this week."
	}

	var b strings.Builder
	b.WriteString("🚀 Promoted this week:\n")
	for _, m := range members {
		fmt.Fprintf(&b, "%s: %s → %s\n",
			memberLabel(m.DisplayName, m.Username, m.UserID),
			tier(m.RoleBaseline),
			tier(m.RoleComparison),
		)
	}
	return b.String()
}

func parseTopArgs(args string) (string, int) {
	fields := strings.Fields(args)
	category, limit := "", defaultTop
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			if n > 0 {
				limit = n
			}
			continue
		}
		if category == "" {
			category = f
		}
	}
	return category, limit
}

func memberLabel(displayName, username, userID string) string {
	switch {
	case displayName != "" && username != "" && displayName != username:
		return fmt.Sprintf("%s (@%s)", displayName, username)
	case username != "":
		return "@" + username
	case displayName != "":
		return displayName
	default:
		return userID
	}
}

func tier(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
