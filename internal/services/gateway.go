package services

import (
	"context"
	"log/slog"

	"member-activity/internal/models"
)

// Store is the durable storage the cycle reads from and writes to.
type Store interface {
	// Ping checks connectivity and returns the number of stored members.
	Ping(ctx context.Context) (int64, error)
	// UpsertMembers writes profile columns, set sticky columns and counts.
	UpsertMembers(ctx context.Context, updates []models.MemberUpdate) error
	// UpsertCounts writes only the per-category counts.
	UpsertCounts(ctx context.Context, updates []models.MemberUpdate) error
	LoadMembers(ctx context.Context) ([]models.MemberState, error)
	MissingSnapshots(ctx context.Context) ([]models.MemberState, error)
	ClearPromotions(ctx context.Context, userIDs []string) error
}

// Scope selects which columns a save touches.
type Scope int

const (
	ScopeProfile Scope = iota
	ScopeCounts
)

func (s Scope) String() string {
	if s == ScopeCounts {
		return "counts"
	}
	return "profile"
}

type SaveResult struct {
	Records       int
	Success       int
	Errors        int
	Batches       int
	FailedBatches int
}

// Gateway chunks member updates into bounded upserts.
type Gateway struct {
	store     Store
	batchSize int
	logger    *slog.Logger
}

func NewGateway(store Store, batchSize int, logger *slog.Logger) *Gateway {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Gateway{store: store, batchSize: batchSize, logger: logger}
}

// Save writes updates chunk by chunk. A failed chunk is counted and logged
// and the remaining chunks still run; cancellation stops before the next one.
func (g *Gateway) Save(ctx context.Context, updates []models.MemberUpdate, scope Scope) SaveResult {
	res := SaveResult{Records: len(updates)}
	total := (len(updates) + g.batchSize - 1) / g.batchSize
	g.logger.Info("saving members", "records", len(updates), "batches", total, "scope", scope.String())

	for i := 0; i < len(updates); i += g.batchSize {
		batch := i/g.batchSize + 1
		end := min(i+g.batchSize, len(updates))
		chunk := updates[i:end]

		if err := ctx.Err(); err != nil {
			res.Errors += len(updates) - i
			g.logger.Warn("save interrupted", "batch", batch, "remaining", len(updates)-i, "error", err)
			break
		}

		res.Batches++
		var err error
		if scope == ScopeCounts {
			err = g.store.UpsertCounts(ctx, chunk)
		} else {
			err = g.store.UpsertMembers(ctx, chunk)
		}
		if err != nil {
			res.Errors += len(chunk)
			res.FailedBatches++
			g.logger.Error("batch failed",
				"batch", batch,
				"of", total,
				"records", len(chunk),
				"first_user_id", chunk[0].UserID,
				"error", err,
			)
			continue
		}
		res.Success += len(chunk)
		g.logger.Debug("batch saved", "batch", batch, "of", total, "records", len(chunk))
	}

	g.logger.Info("save complete", "success", res.Success, "errors", res.Errors)
	return res
}
