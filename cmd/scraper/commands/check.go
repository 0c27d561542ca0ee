package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Runs the snapshot integrity and promotion sanitation passes on stored members.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.newRunner(nil).RunChecks(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("members missing snapshots: %d\n", len(res.Missing))
		for _, id := range res.Missing {
			fmt.Printf("  %s\n", id)
		}
		fmt.Printf("promotions cleared: %d\n", len(res.Cleared))
		return nil
	},
}
