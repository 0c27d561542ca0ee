package models

import (
	"sort"
	"strings"
	"time"
)

// Sticky column names, in the order StickyColumns reports them.
const (
	ColumnJoinedAt       = "joined_at"
	ColumnRoleBaseline   = "role_baseline"
	ColumnRoleComparison = "role_comparison"
	ColumnIsPromoted     = "is_promoted"
	ColumnRegion         = "region"
	ColumnExternalHandle = "external_handle"
)

// ProfileColumns are overwritten on every profile write.
var ProfileColumns = []string{
	"username",
	"display_name",
	"roles",
	"is_bot",
	"total_messages",
	"first_message_at",
	"last_message_at",
	"updated_at",
}

// MemberUpdate is one member's merged write for a cycle. Plain fields are
// always replaced; Field-typed ones are written only when set.
type MemberUpdate struct {
	UserID         string
	Username       string
	DisplayName    string
	Roles          []string
	IsBot          bool
	TotalMessages  int
	FirstMessageAt *time.Time
	LastMessageAt  *time.Time
	Activity       map[string]int

	JoinedAt       Field[time.Time]
	RoleBaseline   Field[float64]
	RoleComparison Field[float64]
	IsPromoted     Field[bool]
	Region         Field[string]
	ExternalHandle Field[string]
}

// StickyColumns lists the sticky columns this update has an opinion on.
func (u MemberUpdate) StickyColumns() []string {
	var cols []string
	if u.JoinedAt.IsSet() {
		cols = append(cols, ColumnJoinedAt)
	}
	if u.RoleBaseline.IsSet() {
		cols = append(cols, ColumnRoleBaseline)
	}
	if u.RoleComparison.IsSet() {
		cols = append(cols, ColumnRoleComparison)
	}
	if u.IsPromoted.IsSet() {
		cols = append(cols, ColumnIsPromoted)
	}
	if u.Region.IsSet() {
		cols = append(cols, ColumnRegion)
	}
	if u.ExternalHandle.IsSet() {
		cols = append(cols, ColumnExternalHandle)
	}
	return cols
}

// Categories returns the activity keys in sorted order.
func (u MemberUpdate) Categories() []string {
	cats := make([]string, 0, len(u.Activity))
	for c := range u.Activity {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// GroupBySignature splits updates into runs that share the same sticky
// column set, keeping first-seen order of both groups and members.
func GroupBySignature(updates []MemberUpdate) [][]MemberUpdate {
	index := map[string]int{}
	var groups [][]MemberUpdate
	for _, u := range updates {
		sig := strings.Join(u.StickyColumns(), ",")
		i, ok := index[sig]
		if !ok {
			i = len(groups)
			index[sig] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], u)
	}
	return groups
}
