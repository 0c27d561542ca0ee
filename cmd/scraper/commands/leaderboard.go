package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"member-activity/internal/models"
	"member-activity/internal/report"
	"member-activity/internal/services"
)

var (
	leaderboardCategory string
	leaderboardLimit    int
)

func init() {
	leaderboardCmd.Flags().StringVar(&leaderboardCategory, "category", models.TotalCategory, "Category to rank by.")
	leaderboardCmd.Flags().IntVarP(&leaderboardLimit, "limit", "n", 20, "Number of members to show.")
	rootCmd.AddCommand(leaderboardCmd)
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [--category <name>] [--limit <n>]",
	Short: "Prints the stored leaderboard for a category.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		standings, err := services.NewStandingsService(a.store).Top(cmd.Context(), leaderboardCategory, leaderboardLimit)
		if err != nil {
			return err
		}

		t := report.NewTable()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Leaderboard: " + leaderboardCategory)
		t.AppendHeader(table.Row{"#", "User ID", "Username", "Display Name", "Messages"})
		for i, s := range standings {
			t.AppendRow(table.Row{i + 1, s.UserID, s.Username, s.DisplayName, s.Count})
		}
		t.Render()
		return nil
	},
}
