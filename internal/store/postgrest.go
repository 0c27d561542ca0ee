package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"member-activity/internal/config"
	"member-activity/internal/models"
)

// PostgrestStore keeps member state behind a Supabase-style REST endpoint.
type PostgrestStore struct {
	client   *resty.Client
	pageSize int
	logger   *slog.Logger
}

func NewPostgrestStore(cfg config.Database, log *slog.Logger) *PostgrestStore {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.Postgrest.URL, "/") + "/rest/v1")
	client.SetHeader("apikey", cfg.Postgrest.APIKey)
	client.SetAuthToken(cfg.Postgrest.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(30 * time.Second)

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &PostgrestStore{client: client, pageSize: pageSize, logger: log}
}

func (s *PostgrestStore) Close() error { return nil }

// Ping asks for an exact row count and reads it back from Content-Range.
func (s *PostgrestStore) Ping(ctx context.Context) (int64, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParam("select", "user_id").
		Head("/members")
	if err := check(res, err); err != nil {
		return 0, err
	}
	return parseCount(res.Header().Get("Content-Range")), nil
}

// parseCount reads the total from "0-24/3573" or "*/0".
func parseCount(contentRange string) int64 {
	_, total, ok := strings.Cut(contentRange, "/")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// UpsertMembers sends one merge-duplicates request per sticky column
// group. Rows only carry the columns the group sets, so omitted sticky
// columns keep their stored values.
func (s *PostgrestStore) UpsertMembers(ctx context.Context, updates []models.MemberUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	for _, group := range models.GroupBySignature(updates) {
		cols := append(slices.Clone(models.ProfileColumns), group[0].StickyColumns()...)
		rows := make([]map[string]any, len(group))
		for i, u := range group {
			rows[i] = memberRow(u, cols)
		}
		if err := s.upsert(ctx, "/members", "user_id", rows); err != nil {
			return fmt.Errorf("upsert members: %w", err)
		}
	}
	return s.UpsertCounts(ctx, updates)
}

func (s *PostgrestStore) UpsertCounts(ctx context.Context, updates []models.MemberUpdate) error {
	var rows []map[string]any
	now := time.Now().UTC()
	for _, u := range updates {
		for _, c := range models.CountsFromUpdate(u) {
			rows = append(rows, map[string]any{
				"user_id":    c.UserID,
				"category":   c.Category,
				"count":      c.Count,
				"updated_at": now,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.upsert(ctx, "/member_activity", "user_id,category", rows); err != nil {
		return fmt.Errorf("upsert counts: %w", err)
	}
	return nil
}

func (s *PostgrestStore) upsert(ctx context.Context, table, conflict string, rows []map[string]any) error {
	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetQueryParam("on_conflict", conflict).
		SetBody(rows).
		Post(table)
	return check(res, err)
}

func memberRow(u models.MemberUpdate, cols []string) map[string]any {
	st := models.StateFromUpdate(u)
	all := map[string]any{
		"user_id":                   st.UserID,
		"username":                  st.Username,
		"display_name":              st.DisplayName,
		"roles":                     []string(st.Roles),
		"is_bot":                    st.IsBot,
		"total_messages":            st.TotalMessages,
		"first_message_at":          st.FirstMessageAt,
		"last_message_at":           st.LastMessageAt,
		"updated_at":                time.Now().UTC(),
		models.ColumnJoinedAt:       st.JoinedAt,
		models.ColumnRoleBaseline:   st.RoleBaseline,
		models.ColumnRoleComparison: st.RoleComparison,
		models.ColumnIsPromoted:     st.IsPromoted,
		models.ColumnRegion:         st.Region,
		models.ColumnExternalHandle: st.ExternalHandle,
	}
	row := map[string]any{"user_id": st.UserID}
	for _, c := range cols {
		row[c] = all[c]
	}
	return row
}

// LoadMembers pages through members with Range headers.
func (s *PostgrestStore) LoadMembers(ctx context.Context) ([]models.MemberState, error) {
	return s.pageMembers(ctx, nil)
}

func (s *PostgrestStore) MissingSnapshots(ctx context.Context) ([]models.MemberState, error) {
	return s.pageMembers(ctx, map[string]string{
		"role_baseline":   "is.null",
		"role_comparison": "is.null",
	})
}

func (s *PostgrestStore) pageMembers(ctx context.Context, filters map[string]string) ([]models.MemberState, error) {
	var all []models.MemberState
	for from := 0; ; from += s.pageSize {
		var page []models.MemberState
		res, err := s.client.R().
			SetContext(ctx).
			SetQueryParam("select", "*").
			SetQueryParam("order", "total_messages.desc,user_id.asc").
			SetQueryParams(filters).
			SetHeader("Range-Unit", "items").
			SetHeader("Range", fmt.Sprintf("%d-%d", from, from+s.pageSize-1)).
			SetResult(&page).
			Get("/members")
		if err := check(res, err); err != nil {
			return nil, fmt.Errorf("load members at %d: %w", from, err)
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			return all, nil
		}
	}
}

func (s *PostgrestStore) ClearPromotions(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetQueryParam("user_id", inList(userIDs)).
		SetBody(map[string]any{models.ColumnIsPromoted: false}).
		Patch("/members")
	return check(res, err)
}

func (s *PostgrestStore) TopMembers(ctx context.Context, category string, limit int) ([]models.Standing, error) {
	if category == models.TotalCategory {
		var rows []models.MemberState
		res, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"select":         "user_id,username,display_name,total_messages",
				"total_messages": "gt.0",
				"order":          "total_messages.desc,user_id.asc",
				"limit":          strconv.Itoa(limit),
			}).
			SetResult(&rows).
			Get("/members")
		if err := check(res, err); err != nil {
			return nil, err
		}
		out := make([]models.Standing, len(rows))
		for i, r := range rows {
			out[i] = models.Standing{UserID: r.UserID, Username: r.Username, DisplayName: r.DisplayName, Count: r.TotalMessages}
		}
		return out, nil
	}

	var counts []models.CategoryCount
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":   "user_id,category,count",
			"category": "eq." + category,
			"count":    "gt.0",
			"order":    "count.desc,user_id.asc",
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&counts).
		Get("/member_activity")
	if err := check(res, err); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}

	ids := make([]string, len(counts))
	for i, c := range counts {
		ids[i] = c.UserID
	}
	var members []models.MemberState
	res, err = s.client.R().
		SetContext(ctx).
		SetQueryParam("select", "user_id,username,display_name").
		SetQueryParam("user_id", inList(ids)).
		SetResult(&members).
		Get("/members")
	if err := check(res, err); err != nil {
		return nil, err
	}
	byID := make(map[string]models.MemberState, len(members))
	for _, m := range members {
		byID[m.UserID] = m
	}

	out := make([]models.Standing, len(counts))
	for i, c := range counts {
		m := byID[c.UserID]
		out[i] = models.Standing{UserID: c.UserID, Username: m.Username, DisplayName: m.DisplayName, Count: c.Count}
	}
	return out, nil
}

func (s *PostgrestStore) PromotedMembers(ctx context.Context) ([]models.MemberState, error) {
	var states []models.MemberState
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":                "*",
			models.ColumnIsPromoted: "is.true",
			"order":                 "role_comparison.desc,user_id.asc",
		}).
		SetResult(&states).
		Get("/members")
	if err := check(res, err); err != nil {
		return nil, err
	}
	return states, nil
}

func inList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}

func check(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if res.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s: %s", res.Request.Method, res.Request.URL, res.Status(), strings.TrimSpace(res.String()))
	}
	return nil
}
