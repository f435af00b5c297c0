package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"nftmarketplace-onchain/model"
)

func (a *app) runCommand() *cobra.Command {
	var (
		continueOnError bool
		jsonOutput      bool
	)
	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Execute a YAML plan of calls in order",
		Long: `Executes each step of the plan in order. A step is submitted only after
the previous one has been mined. The run stops at the first failing step
unless continue_on_error is set in the plan or --continue is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			plan, err := model.LoadPlan(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if continueOnError {
				plan.ContinueOnError = true
			}

			return a.withServices(cmd, true, func(s *services) error {
				report := s.contractUC.RunPlan(cmd.Context(), plan)
				if jsonOutput {
					if err := a.printJSON(report); err != nil {
						return err
					}
				} else {
					a.printReport(report, len(plan.Steps))
				}
				if n := report.Failed(); n > 0 {
					return fmt.Errorf("%d of %d steps failed", n, len(plan.Steps))
				}
				if report.Aborted {
					return fmt.Errorf("plan interrupted after %d of %d steps", len(report.Steps), len(plan.Steps))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&continueOnError, "continue", false, "keep going after a failed step")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) printReport(report *model.PlanReport, total int) {
	for _, step := range report.Steps {
		prefix := "[" + strconv.Itoa(step.Index) + "/" + strconv.Itoa(total) + "] " + step.Operation
		if step.Err != nil {
			fmt.Fprintf(a.out, "%s  FAILED  %s\n", prefix, step.Error)
			continue
		}
		fmt.Fprintf(a.out, "%s  %s  tx=%s block=%d gas=%d\n",
			prefix, step.Result.Status, step.Result.TxHash, step.Result.BlockNumber, step.Result.GasUsed)
	}
	if skipped := total - len(report.Steps); skipped > 0 {
		fmt.Fprintf(a.out, "%d step(s) not run\n", skipped)
	}
}
