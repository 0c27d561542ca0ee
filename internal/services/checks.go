package services

import (
	"context"
	"fmt"
	"log/slog"
)

type CheckResult struct {
	// Missing lists tier holders with neither snapshot.
	Missing []string
	// Cleared lists members whose promotion flag was reset.
	Cleared []string
}

// RunChecks runs the integrity and sanitation passes on stored members
// without scraping anything.
func (r *Runner) RunChecks(ctx context.Context) (*CheckResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer r.mu.Unlock()

	if _, err := r.probe(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return r.runChecks(ctx, r.logger)
}

func (r *Runner) runChecks(ctx context.Context, log *slog.Logger) (*CheckResult, error) {
	res := &CheckResult{}
	reconciler := NewReconciler(r.cfg.Policy, log)

	candidates, err := r.store.MissingSnapshots(ctx)
	if err != nil {
		return res, fmt.Errorf("integrity check: %w", err)
	}
	for _, st := range reconciler.MissingSnapshots(candidates) {
		res.Missing = append(res.Missing, st.UserID)
	}
	if len(res.Missing) > 0 {
		log.Warn("tier holders missing both snapshots", "count", len(res.Missing), "user_ids", res.Missing)
	} else {
		log.Info("integrity check passed")
	}

	states, err := r.store.LoadMembers(ctx)
	if err != nil {
		return res, fmt.Errorf("sanitation load: %w", err)
	}
	ids := PromotionViolations(states)
	if len(ids) == 0 {
		log.Info("sanitation check passed")
		return res, nil
	}
	if err := r.store.ClearPromotions(ctx, ids); err != nil {
		return res, fmt.Errorf("sanitation clear: %w", err)
	}
	res.Cleared = ids
	log.Warn("cleared promotions with unchanged tier", "count", len(ids), "user_ids", ids)
	return res, nil
}
