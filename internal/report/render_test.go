package report

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"member-activity/internal/models"
)

func sampleSummary() *Summary {
	a := rec("1", map[string]int{"general": 3})
	b := rec("2", map[string]int{"art": 1})
	b.Roles = []string{"Magnitude 3", "Europe"}
	g := Generator{LeaderboardSize: 10, ReportSize: 5, TopContributors: 5}
	members := []models.Member{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	return g.Build(day0, members, []*models.ActivityRecord{a, b}, []string{"general", "art"})
}

func TestRenderCSV(t *testing.T) {
	data, err := RenderCSV(sampleSummary())
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Rank", "User ID", "Username", "Display Name", "Roles", "Total Messages", "general", "art", "First Message", "Last Message"}, rows[0])
	assert.Equal(t, []string{"1", "1", "u1", "User 1", "Member", "3", "3", "0", "2024-02-01", "2024-02-01"}, rows[1])
	assert.Equal(t, "Magnitude 3; Europe", rows[2][4])
	assert.Equal(t, []string{"0", "1"}, rows[2][6:8])
}

func TestRenderText(t *testing.T) {
	out := RenderText(sampleSummary())

	assert.Contains(t, out, "Member Activity Report")
	assert.Contains(t, out, "GENERAL")
	assert.Contains(t, out, "ART")
	assert.Contains(t, out, "User 1 (@u1)")
	assert.Contains(t, out, "Magnitude 3, Europe")
}
