package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"member-activity/internal/models"
)

// Unlimited disables the per-channel message cap.
const Unlimited = 0

// MessageSource fetches one page of a channel's history, newest first,
// strictly older than the before cursor (empty for the latest page).
type MessageSource interface {
	ChannelMessages(ctx context.Context, channelID, before string, limit int) ([]models.Message, error)
}

type ChannelFailure struct {
	Category  string
	ChannelID string
	Err       error
}

type AggregateResult struct {
	// Records holds members with at least one message, by total descending.
	Records  []*models.ActivityRecord
	Failures []ChannelFailure
	Scanned  int
}

type Aggregator struct {
	source   MessageSource
	pageSize int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewAggregator(source MessageSource, pageSize int, pageDelay time.Duration, logger *slog.Logger) *Aggregator {
	limit := rate.Inf
	if pageDelay > 0 {
		limit = rate.Every(pageDelay)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Aggregator{
		source:   source,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Aggregate counts non-bot messages per member and category. State is built
// fresh on every call. A channel that fails to fetch is reported in Failures
// and contributes nothing; only context cancellation aborts the run.
func (a *Aggregator) Aggregate(ctx context.Context, members []models.Member, categories []models.CategorySpec, limit int) (*AggregateResult, error) {
	tally := newTally(members)
	res := &AggregateResult{}

	for _, cat := range categories {
		a.logger.Info("processing category", "category", cat.Name, "channels", len(cat.ChannelIDs))
		for _, channelID := range cat.ChannelIDs {
			msgs, err := a.fetchChannel(ctx, channelID, limit)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				a.logger.Error("channel fetch failed, skipping",
					"category", cat.Name,
					"channel_id", channelID,
					"error", err,
				)
				res.Failures = append(res.Failures, ChannelFailure{Category: cat.Name, ChannelID: channelID, Err: err})
				continue
			}
			for _, m := range msgs {
				tally.add(cat.Name, m)
			}
			res.Scanned += len(msgs)
			a.logger.Debug("channel counted", "category", cat.Name, "channel_id", channelID, "messages", len(msgs))
		}
	}

	res.Records = tally.active()
	return res, nil
}

// fetchChannel walks a channel backward page by page and returns its
// non-bot messages, at most limit of them when limit is positive.
func (a *Aggregator) fetchChannel(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	var out []models.Message
	seen := map[string]struct{}{}
	before := ""

	for page := 0; ; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch, err := a.source.ChannelMessages(ctx, channelID, before, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d before %q: %w", page, before, err)
		}
		if len(batch) == 0 {
			return out, nil
		}

		for _, m := range batch {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			if m.AuthorBot {
				continue
			}
			out = append(out, m)
			if limit > Unlimited && len(out) >= limit {
				return out, nil
			}
		}

		next := batch[len(batch)-1].ID
		if len(batch) < a.pageSize || next == before {
			return out, nil
		}
		before = next

		if (page+1)%5 == 0 {
			a.logger.Debug("fetching", "channel_id", channelID, "pages", page+1, "kept", len(out))
		}
	}
}

// tally is the per-cycle accumulator, keyed by user id and ordered by
// member list position, then by first appearance for departed authors.
type tally struct {
	order []*models.ActivityRecord
	byID  map[string]*models.ActivityRecord
}

func newTally(members []models.Member) *tally {
	t := &tally{byID: make(map[string]*models.ActivityRecord, len(members))}
	for _, m := range members {
		if _, ok := t.byID[m.ID]; ok {
			continue
		}
		rec := models.NewActivityRecord(m)
		t.byID[m.ID] = rec
		t.order = append(t.order, rec)
	}
	return t
}

func (t *tally) add(category string, m models.Message) {
	rec, ok := t.byID[m.AuthorID]
	if !ok {
		rec = models.NewActivityRecord(models.Member{
			ID:          m.AuthorID,
			Username:    m.AuthorUsername,
			DisplayName: m.AuthorUsername,
			Roles:       []string{models.LeftServerRole},
		})
		t.byID[m.AuthorID] = rec
		t.order = append(t.order, rec)
	}
	rec.Add(category, m.CreatedAt)
}

func (t *tally) active() []*models.ActivityRecord {
	var out []*models.ActivityRecord
	for _, rec := range t.order {
		if rec.TotalMessages > 0 {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalMessages > out[j].TotalMessages
	})
	return out
}

// IsLeftServer reports whether the record was synthesized for an author
// missing from the member list.
func IsLeftServer(rec *models.ActivityRecord) bool {
	return len(rec.Roles) == 1 && rec.Roles[0] == models.LeftServerRole
}
