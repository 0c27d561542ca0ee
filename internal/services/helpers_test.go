package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"member-activity/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var base = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

// fakeChat serves channel histories newest first and counts page fetches.
type fakeChat struct {
	mu       sync.Mutex
	members  []models.Member
	channels []models.Channel
	history  map[string][]models.Message
	failing  map[string]error
	calls    map[string]int

	membersErr  error
	channelsErr error

	// overlap repeats that many messages from the end of the previous page.
	overlap int
	// stuck ignores the cursor and always serves the newest page.
	stuck map[string]bool
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		history: map[string][]models.Message{},
		failing: map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeChat) Members(context.Context) ([]models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["members"]++
	return f.members, f.membersErr
}

func (f *fakeChat) TextChannels(context.Context) ([]models.Channel, error) {
	return f.channels, f.channelsErr
}

func (f *fakeChat) ChannelMessages(_ context.Context, channelID, before string, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[channelID]++
	if err := f.failing[channelID]; err != nil {
		return nil, err
	}
	msgs := f.history[channelID]
	start := 0
	if before != "" && !f.stuck[channelID] {
		start = len(msgs)
		for i, m := range msgs {
			if m.ID == before {
				start = max(i+1-f.overlap, 0)
				break
			}
		}
	}
	end := min(start+limit, len(msgs))
	return append([]models.Message(nil), msgs[start:end]...), nil
}

// post appends n messages by author to channel, each older than the last.
func (f *fakeChat) post(channelID, authorID string, n int, bot bool) {
	existing := f.history[channelID]
	for i := 0; i < n; i++ {
		seq := len(existing) + 1
		existing = append(existing, models.Message{
			ID:             fmt.Sprintf("%s-%06d", channelID, seq),
			ChannelID:      channelID,
			AuthorID:       authorID,
			AuthorUsername: "user" + authorID,
			AuthorBot:      bot,
			CreatedAt:      base.Add(-time.Duration(seq) * time.Minute),
		})
	}
	f.history[channelID] = existing
}

// recordingStore keeps what was written and can be told to fail.
type recordingStore struct {
	mu       sync.Mutex
	pingErr  error
	failAt   map[int]bool
	calls    int
	members  [][]models.MemberUpdate
	counts   [][]models.MemberUpdate
	stored   []models.MemberState
	missing  []models.MemberState
	cleared  []string
	clearErr error
	loadErr  error
}

var errBatch = errors.New("batch rejected")

func (s *recordingStore) Ping(context.Context) (int64, error) {
	return int64(len(s.stored)), s.pingErr
}

func (s *recordingStore) UpsertMembers(_ context.Context, u []models.MemberUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt[s.calls] {
		return errBatch
	}
	s.members = append(s.members, u)
	return nil
}

func (s *recordingStore) UpsertCounts(_ context.Context, u []models.MemberUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt[s.calls] {
		return errBatch
	}
	s.counts = append(s.counts, u)
	return nil
}

func (s *recordingStore) LoadMembers(context.Context) ([]models.MemberState, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.stored, nil
}

func (s *recordingStore) MissingSnapshots(context.Context) ([]models.MemberState, error) {
	return s.missing, nil
}

func (s *recordingStore) ClearPromotions(_ context.Context, ids []string) error {
	s.cleared = append(s.cleared, ids...)
	return s.clearErr
}

func ptr[T any](v T) *T { return &v }
