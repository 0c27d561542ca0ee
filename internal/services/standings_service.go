package services

import (
	"context"
	"fmt"

	"member-activity/internal/models"
)

// StandingsStore answers leaderboard queries from stored state.
type StandingsStore interface {
	TopMembers(ctx context.Context, category string, limit int) ([]models.Standing, error)
	PromotedMembers(ctx context.Context) ([]models.MemberState, error)
}

type StandingsService struct {
	store StandingsStore
}

func NewStandingsService(store StandingsStore) *StandingsService {
	return &StandingsService{store: store}
}

// Top returns the stored leaderboard for category, or by total messages
// when category is empty.
func (s *StandingsService) Top(ctx context.Context, category string, limit int) ([]models.Standing, error) {
	if limit <= 0 {
		limit = 10
	}
	if category == "" {
		category = models.TotalCategory
	}
	standings, err := s.store.TopMembers(ctx, category, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", category, err)
	}
	return standings, nil
}

func (s *StandingsService) Promoted(ctx context.Context) ([]models.MemberState, error) {
	members, err := s.store.PromotedMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("promoted members: %w", err)
	}
	return members, nil
}
