package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"member-activity/internal/config"
	"member-activity/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, pageSize int) *GormStore {
	t.Helper()
	var cfg config.Database
	cfg.Type = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "activity.db")
	cfg.PageSize = pageSize

	s, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func update(id, username string, total int) models.MemberUpdate {
	return models.MemberUpdate{
		UserID:        id,
		Username:      username,
		DisplayName:   username,
		Roles:         []string{"Magnitude 3"},
		TotalMessages: total,
		Activity:      map[string]int{"general": total},
	}
}

func load(t *testing.T, s *GormStore, id string) models.MemberState {
	t.Helper()
	states, err := s.LoadMembers(context.Background())
	require.NoError(t, err)
	for _, st := range states {
		if st.UserID == id {
			return st
		}
	}
	t.Fatalf("member %s not stored", id)
	return models.MemberState{}
}

func TestGormPing(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	n, err := s.Ping(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{update("1", "alice", 1)}))
	n, err = s.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormAbsentFieldsKeepStoredValues(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	first := update("1", "alice", 4)
	first.RoleBaseline = models.Set(3.0)
	first.IsPromoted = models.Set(false)
	first.Region = models.Set("Europe")
	first.ExternalHandle = models.Set("alice_x")
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{first}))

	second := update("1", "alice2", 9)
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{second}))

	st := load(t, s, "1")
	assert.Equal(t, "alice2", st.Username)
	assert.Equal(t, 9, st.TotalMessages)
	require.NotNil(t, st.RoleBaseline)
	assert.Equal(t, 3.0, *st.RoleBaseline)
	assert.Nil(t, st.RoleComparison)
	require.NotNil(t, st.IsPromoted)
	assert.False(t, *st.IsPromoted)
	assert.Equal(t, "Europe", *st.Region)
	assert.Equal(t, "alice_x", *st.ExternalHandle)
	assert.Equal(t, []string{"Magnitude 3"}, []string(st.Roles))
}

func TestGormNullClearsAndSetOverwrites(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	u := update("1", "alice", 1)
	u.RoleBaseline = models.Set(3.0)
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{u}))

	u.RoleBaseline = models.Null[float64]()
	u.RoleComparison = models.Set(4.0)
	u.IsPromoted = models.Set(true)
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{u}))

	st := load(t, s, "1")
	assert.Nil(t, st.RoleBaseline)
	assert.Equal(t, 4.0, *st.RoleComparison)
	assert.True(t, st.Promoted())
}

func TestGormMixedSignaturesInOneChunk(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	seed := []models.MemberUpdate{update("1", "alice", 1), update("2", "bob", 1)}
	seed[0].Region = models.Set("Asia")
	seed[1].Region = models.Set("Europe")
	require.NoError(t, s.UpsertMembers(ctx, seed))

	withRegion := update("1", "alice", 2)
	withRegion.Region = models.Set("Europe")
	without := update("2", "bob", 2)
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{withRegion, without}))

	assert.Equal(t, "Europe", *load(t, s, "1").Region)
	assert.Equal(t, "Europe", *load(t, s, "2").Region)
	assert.Equal(t, 2, load(t, s, "2").TotalMessages)
}

func TestGormCountsOnlyLeavesProfileAlone(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{update("1", "alice", 5)}))
	require.NoError(t, s.UpsertCounts(ctx, []models.MemberUpdate{
		{UserID: "1", Activity: map[string]int{"general": 1, "memes": 7}},
		{UserID: "9", Activity: map[string]int{"memes": 2}},
	}))

	st := load(t, s, "1")
	assert.Equal(t, "alice", st.Username)
	assert.Equal(t, 5, st.TotalMessages)

	n, err := s.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	top, err := s.TopMembers(ctx, "memes", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, models.Standing{UserID: "1", Username: "alice", DisplayName: "alice", Count: 7}, top[0])
	assert.Equal(t, models.Standing{UserID: "9", Count: 2}, top[1])

	general, err := s.TopMembers(ctx, "general", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, general[0].Count)
}

func TestGormLoadMembersPages(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	var batch []models.MemberUpdate
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		batch = append(batch, update(string(rune('1'+i)), name, i))
	}
	require.NoError(t, s.UpsertMembers(ctx, batch))

	states, err := s.LoadMembers(ctx)
	require.NoError(t, err)
	require.Len(t, states, 5)
	assert.Equal(t, "e", states[0].Username)
	assert.Equal(t, "a", states[4].Username)

	top, err := s.TopMembers(ctx, models.TotalCategory, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{top[0].Count, top[1].Count, top[2].Count})
}

func TestGormSnapshotQueries(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	none := update("1", "none", 1)
	equal := update("2", "equal", 1)
	equal.RoleBaseline = models.Set(3.0)
	equal.RoleComparison = models.Set(3.0)
	equal.IsPromoted = models.Set(true)
	up := update("3", "up", 1)
	up.RoleBaseline = models.Set(3.0)
	up.RoleComparison = models.Set(4.0)
	up.IsPromoted = models.Set(true)
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{none, equal, up}))

	missing, err := s.MissingSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "1", missing[0].UserID)

	promoted, err := s.PromotedMembers(ctx)
	require.NoError(t, err)
	require.Len(t, promoted, 2)
	assert.Equal(t, "3", promoted[0].UserID)

	require.NoError(t, s.ClearPromotions(ctx, []string{"2"}))
	require.NoError(t, s.ClearPromotions(ctx, nil))
	promoted, err = s.PromotedMembers(ctx)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.False(t, load(t, s, "2").Promoted())
}

func TestGormCreatedAtSurvivesUpdates(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{update("1", "alice", 1)}))
	created := load(t, s, "1").CreatedAt
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.UpsertMembers(ctx, []models.MemberUpdate{update("1", "alice", 2)}))

	st := load(t, s, "1")
	assert.True(t, st.CreatedAt.Equal(created))
	assert.False(t, st.UpdatedAt.Before(created))
}

func TestEnsureTimezoneUTC(t *testing.T) {
	got, err := ensureTimezoneUTC("postgres://u:p@localhost:5432/db?sslmode=disable")
	require.NoError(t, err)
	assert.Contains(t, got, "TimeZone=UTC")

	got, err = ensureTimezoneUTC("postgres://localhost/db?TimeZone=Europe%2FBerlin")
	require.NoError(t, err)
	assert.NotContains(t, got, "TimeZone=UTC")

	got, err = ensureTimezoneUTC("host=localhost user=u dbname=db")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost user=u dbname=db", got)
}
