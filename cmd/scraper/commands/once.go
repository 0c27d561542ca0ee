package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"member-activity/internal/config"
	"member-activity/internal/report"
)

var onceJob string

func init() {
	onceCmd.Flags().StringVarP(&onceJob, "job", "j", "", "Name of the job to run. Optional when only one job is configured.")
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once [--job <name>]",
	Short: "Runs a single cycle of one job now.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := pickJob(a.cfg, onceJob)
		if err != nil {
			return err
		}

		src, err := a.newSource(ctx)
		if err != nil {
			return err
		}
		res, err := a.newRunner(src).RunCycle(ctx, job)
		if err != nil {
			return err
		}

		t := report.NewTable()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle(fmt.Sprintf("%s (%s)", res.Job, res.RunID))
		t.AppendRows([]table.Row{
			{"Members", res.Members},
			{"Active members", res.Records},
			{"Messages counted", res.Scanned},
			{"Skipped channels", len(res.Failures)},
			{"Saved", res.Save.Success},
			{"Save errors", res.Save.Errors},
			{"Duration", res.Duration.String()},
		})
		t.Render()
		return nil
	},
}

func pickJob(cfg *config.Config, name string) (config.Job, error) {
	if name == "" {
		if len(cfg.App.Jobs) == 1 {
			return cfg.App.Jobs[0], nil
		}
		return config.Job{}, fmt.Errorf("--job is required, configured jobs: %s", jobNames(cfg))
	}
	job, ok := cfg.Job(name)
	if !ok {
		return config.Job{}, fmt.Errorf("unknown job %q, configured jobs: %s", name, jobNames(cfg))
	}
	return job, nil
}

func jobNames(cfg *config.Config) string {
	names := make([]string, len(cfg.App.Jobs))
	for i, j := range cfg.App.Jobs {
		names[i] = j.Name
	}
	return strings.Join(names, ", ")
}
