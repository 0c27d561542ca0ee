package services

import (
	"log/slog"
	"strings"
	"time"

	"member-activity/internal/models"
)

// SnapshotPolicy fixes the weekly snapshot days and role conventions.
type SnapshotPolicy struct {
	BaselineDay   time.Weekday
	ComparisonDay time.Weekday
	TierPrefix    string
	Regions       []string
}

// Reconciler turns a cycle's activity records into merged member updates.
// Sticky fields are only populated when this cycle has fresh data for them.
type Reconciler struct {
	policy SnapshotPolicy
	tiers  *TierParser
	logger *slog.Logger
}

func NewReconciler(policy SnapshotPolicy, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		policy: policy,
		tiers:  NewTierParser(policy.TierPrefix),
		logger: logger,
	}
}

func (r *Reconciler) Tiers() *TierParser {
	return r.tiers
}

// Reconcile builds one update per record. Activity is zero-filled for every
// name in categories. prior supplies the stored baseline on comparison day;
// handles supplies external usernames.
func (r *Reconciler) Reconcile(now time.Time, records []*models.ActivityRecord, prior map[string]models.MemberState, handles map[string]string, categories []string) []models.MemberUpdate {
	day := now.UTC().Weekday()
	r.logger.Info("reconciling snapshots",
		"weekday", day.String(),
		"baseline_day", r.policy.BaselineDay.String(),
		"comparison_day", r.policy.ComparisonDay.String(),
		"records", len(records),
	)

	promoted := 0
	updates := make([]models.MemberUpdate, 0, len(records))
	for _, rec := range records {
		u := models.MemberUpdate{
			UserID:         rec.UserID,
			Username:       rec.Username,
			DisplayName:    rec.DisplayName,
			Roles:          rec.Roles,
			TotalMessages:  rec.TotalMessages,
			FirstMessageAt: rec.FirstMessageAt,
			LastMessageAt:  rec.LastMessageAt,
			Activity:       zeroFilled(rec.Activity, categories),
		}
		if rec.JoinedAt != nil {
			u.JoinedAt = models.Set(*rec.JoinedAt)
		}

		tier, hasTier := r.tiers.Highest(rec.Roles)
		switch day {
		case r.policy.BaselineDay:
			u.RoleBaseline = tierField(tier, hasTier)
			u.IsPromoted = models.Set(false)
		case r.policy.ComparisonDay:
			u.RoleComparison = tierField(tier, hasTier)
			var baseline *float64
			if st, ok := prior[rec.UserID]; ok {
				baseline = st.RoleBaseline
			}
			up := hasTier && baseline != nil && tier > *baseline
			u.IsPromoted = models.Set(up)
			if up {
				promoted++
				r.logger.Info("promotion detected",
					"user_id", rec.UserID,
					"username", rec.Username,
					"from", *baseline,
					"to", tier,
				)
			}
		}

		if region, ok := r.Region(rec.Roles); ok {
			u.Region = models.Set(region)
		}
		if h, ok := handles[rec.UserID]; ok && strings.TrimSpace(h) != "" {
			u.ExternalHandle = models.Set(strings.TrimSpace(h))
		}

		updates = append(updates, u)
	}

	if day == r.policy.ComparisonDay {
		r.logger.Info("comparison snapshot taken", "promoted", promoted)
	}
	return updates
}

// Region returns the first configured regional role the member holds.
func (r *Reconciler) Region(roles []string) (string, bool) {
	for _, role := range roles {
		name := strings.TrimSpace(role)
		for _, region := range r.policy.Regions {
			if strings.EqualFold(name, region) {
				return region, true
			}
		}
	}
	return "", false
}

// MissingSnapshots returns stored members that hold a tier role yet have
// neither a baseline nor a comparison snapshot.
func (r *Reconciler) MissingSnapshots(states []models.MemberState) []models.MemberState {
	var out []models.MemberState
	for _, st := range states {
		if st.RoleBaseline != nil || st.RoleComparison != nil {
			continue
		}
		if r.tiers.HasTier(st.Roles) {
			out = append(out, st)
		}
	}
	return out
}

// PromotionViolations returns ids flagged as promoted although both
// snapshots are present and equal.
func PromotionViolations(states []models.MemberState) []string {
	var ids []string
	for _, st := range states {
		if st.RoleBaseline == nil || st.RoleComparison == nil {
			continue
		}
		if *st.RoleBaseline == *st.RoleComparison && st.Promoted() {
			ids = append(ids, st.UserID)
		}
	}
	return ids
}

func tierField(tier float64, ok bool) models.Field[float64] {
	if !ok {
		return models.Null[float64]()
	}
	return models.Set(tier)
}

func zeroFilled(activity map[string]int, categories []string) map[string]int {
	out := make(map[string]int, len(categories))
	for _, c := range categories {
		out[c] = 0
	}
	for c, n := range activity {
		out[c] = n
	}
	return out
}
