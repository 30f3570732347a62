package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/regcascade/internal/ledger"
	"github.com/zjrosen/regcascade/internal/presentation"
)

var (
	historyJob    string
	historyOutput string
	historyStatus string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded invocations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded invocations as JSON, newest first",
	Long: `List recorded invocations as JSON, newest first.

Examples:
  # Everything recorded for one job
  regcascade history list --job s01

  # Failures only
  regcascade history list --status failed

  # What produced a transform
  regcascade history list --output /data/s01/nl.xfm --limit 1

  # Parse specific fields with jq
  regcascade history list | jq -r '.[] | [.status, .job] | @tsv'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := ledger.Status(historyStatus)
		if status != "" && !status.Valid() {
			return fmt.Errorf("unknown status %q (want skipped, succeeded or failed)", historyStatus)
		}

		output := historyOutput
		if output != "" {
			abs, err := filepath.Abs(output)
			if err != nil {
				return err
			}
			output = abs
		}

		e, err := openEnv(envOptions{})
		if err != nil {
			return err
		}
		defer e.close()
		repo, err := e.requireLedger()
		if err != nil {
			return err
		}

		records, err := repo.List(ledger.ListFilter{
			Job:    historyJob,
			Output: output,
			Status: status,
			Limit:  historyLimit,
		})
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatInvocations(presentation.FromRecords(records))
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one invocation as JSON (a unique id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(envOptions{})
		if err != nil {
			return err
		}
		defer e.close()
		repo, err := e.requireLedger()
		if err != nil {
			return err
		}

		record, err := repo.FindByID(args[0])
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatInvocation(presentation.FromRecord(record))
	},
}

func init() {
	historyListCmd.Flags().StringVar(&historyJob, "job", "", "filter by job name")
	historyListCmd.Flags().StringVar(&historyOutput, "output", "", "filter by primary output path")
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (skipped, succeeded, failed)")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum records (0 for all)")

	historyCmd.AddCommand(historyListCmd, historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
