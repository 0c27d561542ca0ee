package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const maxRolesShown = 5

// NewTable returns a table writer in the report style.
func NewTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderText renders the human-readable activity report.
func RenderText(s *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Member Activity Report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt.UTC().Format(time.RFC1123))

	stats := NewTable()
	stats.SetTitle("Overall statistics")
	stats.AppendRows([]table.Row{
		{"Total members", len(s.Members)},
		{"Active members", len(s.Records)},
		{"Categories tracked", strings.Join(s.Categories, ", ")},
	})
	b.WriteString(stats.Render())
	b.WriteString("\n")

	for _, c := range s.Categories {
		lb := s.Leaderboards[c]
		if s.reportSize > 0 && len(lb) > s.reportSize {
			lb = lb[:s.reportSize]
		}
		t := NewTable()
		t.SetTitle("Leaderboard: " + strings.ToUpper(c))
		t.AppendHeader(table.Row{"#", "Member", "Messages"})
		for _, e := range lb {
			t.AppendRow(table.Row{e.Rank, e.DisplayName, e.Count})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
		})
		b.WriteString("\n")
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	top := s.Records
	if s.topContributors > 0 && len(top) > s.topContributors {
		top = top[:s.topContributors]
	}
	t := NewTable()
	t.SetTitle(fmt.Sprintf("Top %d contributors (all categories)", len(top)))
	header := table.Row{"#", "Member", "Roles", "Total"}
	for _, c := range s.Categories {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for i, r := range top {
		roles := r.Roles
		if len(roles) > maxRolesShown {
			roles = roles[:maxRolesShown]
		}
		row := table.Row{
			i + 1,
			fmt.Sprintf("%s (@%s)", r.DisplayName, r.Username),
			strings.Join(roles, ", "),
			r.TotalMessages,
		}
		for _, c := range s.Categories {
			row = append(row, r.Count(c))
		}
		t.AppendRow(row)
	}
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")

	return b.String()
}

// RenderCSV renders one row per active member with a zero-filled column
// for every category in the summary.
func RenderCSV(s *Summary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Rank", "User ID", "Username", "Display Name", "Roles", "Total Messages"}
	header = append(header, s.Categories...)
	header = append(header, "First Message", "Last Message")
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i, r := range s.Records {
		row := []string{
			strconv.Itoa(i + 1),
			r.UserID,
			r.Username,
			r.DisplayName,
			strings.Join(r.Roles, "; "),
			strconv.Itoa(r.TotalMessages),
		}
		for _, c := range s.Categories {
			row = append(row, strconv.Itoa(r.Count(c)))
		}
		row = append(row, day(r.FirstMessageAt), day(r.LastMessageAt))
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func day(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
