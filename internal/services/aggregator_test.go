package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"member-activity/internal/models"
)

func members(ids ...string) []models.Member {
	out := make([]models.Member, len(ids))
	for i, id := range ids {
		out[i] = models.Member{ID: id, Username: "user" + id, DisplayName: "User " + id, Roles: []string{"Member"}}
	}
	return out
}

func TestAggregatePagesUntilShortPage(t *testing.T) {
	chat := newFakeChat()
	chat.post("general", "1", 250, false)

	agg := NewAggregator(chat, 100, 0, quietLogger())
	res, err := agg.Aggregate(context.Background(), members("1"), []models.CategorySpec{
		{Name: "general", ChannelIDs: []string{"general"}},
	}, Unlimited)
	require.NoError(t, err)

	assert.Equal(t, 3, chat.calls["general"])
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, 250, rec.TotalMessages)
	assert.Equal(t, 250, rec.Count("general"))
	assert.Equal(t, base.Add(-250*time.Minute), *rec.FirstMessageAt)
	assert.Equal(t, base.Add(-1*time.Minute), *rec.LastMessageAt)
	assert.True(t, rec.Consistent())
}

func TestAggregateFullLastPageNeedsEmptyFetch(t *testing.T) {
	chat := newFakeChat()
	chat.post("general", "1", 200, false)

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"general"}}}, Unlimited)
	require.NoError(t, err)
	assert.Equal(t, 3, chat.calls["general"])
	assert.Equal(t, 200, res.Records[0].TotalMessages)
}

func TestAggregateSkipsBotsAndSynthesizesLeftMembers(t *testing.T) {
	chat := newFakeChat()
	chat.post("general", "1", 2, false)
	chat.post("general", "bot", 5, true)
	chat.post("general", "gone", 3, false)

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1", "2"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"general"}}}, Unlimited)
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "gone", res.Records[0].UserID)
	assert.Equal(t, 3, res.Records[0].TotalMessages)
	assert.True(t, IsLeftServer(res.Records[0]))
	assert.Equal(t, "usergone", res.Records[0].Username)

	assert.Equal(t, "1", res.Records[1].UserID)
	assert.False(t, IsLeftServer(res.Records[1]))
	assert.Equal(t, 5, res.Scanned)
}

func TestAggregateOmitsFailedChannel(t *testing.T) {
	chat := newFakeChat()
	chat.post("a", "1", 4, false)
	chat.post("b", "1", 6, false)
	chat.failing["b"] = errors.New("missing access")

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1"),
		[]models.CategorySpec{
			{Name: "general", ChannelIDs: []string{"a"}},
			{Name: "art", ChannelIDs: []string{"b"}},
		}, Unlimited)
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].ChannelID)
	assert.Equal(t, "art", res.Failures[0].Category)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 4, res.Records[0].TotalMessages)
	assert.Equal(t, 0, res.Records[0].Count("art"))
}

func TestAggregateIsRebuiltEachCall(t *testing.T) {
	chat := newFakeChat()
	chat.post("a", "1", 3, false)
	chat.post("a", "2", 7, false)
	cats := []models.CategorySpec{{Name: "general", ChannelIDs: []string{"a"}}}
	agg := NewAggregator(chat, 100, 0, quietLogger())

	first, err := agg.Aggregate(context.Background(), members("1", "2"), cats, Unlimited)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), members("1", "2"), cats, Unlimited)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, "2", second.Records[0].UserID)
	assert.Equal(t, 7, second.Records[0].TotalMessages)
}

func TestAggregateTiesKeepMemberOrder(t *testing.T) {
	chat := newFakeChat()
	chat.post("a", "2", 2, false)
	chat.post("a", "1", 2, false)

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1", "2"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"a"}}}, Unlimited)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "1", res.Records[0].UserID)
	assert.Equal(t, "2", res.Records[1].UserID)
}

func TestAggregateRespectsLimit(t *testing.T) {
	chat := newFakeChat()
	chat.post("a", "1", 250, false)

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"a"}}}, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, chat.calls["a"])
	assert.Equal(t, 30, res.Records[0].TotalMessages)
}

func TestAggregateCancelled(t *testing.T) {
	chat := newFakeChat()
	chat.post("a", "1", 10, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(ctx, members("1"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"a"}}}, Unlimited)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAggregateDropsRepeatedMessagesAcrossPages(t *testing.T) {
	chat := newFakeChat()
	chat.overlap = 10
	chat.post("general", "1", 250, false)

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"general"}}}, Unlimited)
	require.NoError(t, err)

	assert.Equal(t, 3, chat.calls["general"])
	assert.Equal(t, 250, res.Scanned)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 250, res.Records[0].TotalMessages)
	assert.Equal(t, 250, res.Records[0].Count("general"))
	assert.True(t, res.Records[0].Consistent())
}

func TestAggregateStopsWhenCursorDoesNotAdvance(t *testing.T) {
	chat := newFakeChat()
	chat.stuck = map[string]bool{"general": true}
	chat.post("general", "1", 150, false)

	res, err := NewAggregator(chat, 100, 0, quietLogger()).Aggregate(context.Background(), members("1"),
		[]models.CategorySpec{{Name: "general", ChannelIDs: []string{"general"}}}, Unlimited)
	require.NoError(t, err)

	assert.Equal(t, 2, chat.calls["general"])
	require.Len(t, res.Records, 1)
	assert.Equal(t, 100, res.Records[0].TotalMessages)
	assert.True(t, res.Records[0].Consistent())
}
