// Command bulletinctl runs operator maintenance tasks against the bulletin
// database.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/app"
	"github.com/noah-isme/bulletin-api/internal/service"
	"github.com/noah-isme/bulletin-api/pkg/config"
	"github.com/noah-isme/bulletin-api/pkg/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bulletinctl",
		Short:        "Maintenance commands for school bulletins",
		SilenceUsage: true,
	}
	root.AddCommand(recalculateRanksCmd(), refreshDetailsCmd(), createMissingParentsCmd())
	return root
}

// withApp loads configuration, wires the services and runs fn. Workers are
// not started.
func withApp(fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		logr.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}

func recalculateRanksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate-ranks",
		Short: "Recompute competition ranks for every class and period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				results, err := a.Maintenance.RecalculateRanks(cmd.Context())
				if err != nil {
					return err
				}
				printRecalculated(cmd.OutOrStdout(), results)
				return nil
			})
		},
	}
}

// printRecalculated reports ranked cards per scope next to the class headcount,
// which also counts students without a bulletin.
func printRecalculated(out io.Writer, results []service.RecalculateResult) {
	for _, r := range results {
		fmt.Fprintf(out, "%s %s %s: %d bulletin(s) ranked, %d student(s) in class\n",
			r.Scope.ClassID, r.Scope.Period, r.Scope.SchoolYear, len(r.Assignments), r.TotalStudents)
	}
	fmt.Fprintf(out, "%d scope(s) recalculated\n", len(results))
}

func refreshDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-details",
		Short: "Recompute and print the per-subject breakdown of every bulletin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				out := cmd.OutOrStdout()
				failed := 0
				total, err := a.Maintenance.RefreshDetails(cmd.Context(), func(r service.DetailReport) {
					b := r.Bulletin
					if r.Err != nil {
						failed++
						fmt.Fprintf(out, "! %s (%s %s): %v\n", b.StudentName, b.Period, b.SchoolYear, r.Err)
						return
					}
					fmt.Fprintf(out, "%s (%s, %s %s): %.2f %s, rang %d/%d\n",
						b.StudentName, b.ClassName, b.Period, b.SchoolYear, b.Average, b.Mention, b.Rank, b.TotalStudents)
					for _, s := range r.Subjects {
						fmt.Fprintf(out, "    %-24s moy %5.2f  coef %.1f  notes %d  [%.2f - %.2f]\n",
							s.SubjectName, s.Average, s.Coefficient, s.Count, s.Min, s.Max)
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d bulletin(s) processed, %d failed\n", total, failed)
				return nil
			})
		},
	}
}

func createMissingParentsCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "create-missing-parents",
		Short: "Create parent accounts from student contact emails and link them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				report, err := a.Maintenance.CreateMissingParents(cmd.Context(), password)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, msg := range report.Errors {
					fmt.Fprintf(out, "! %s\n", msg)
				}
				fmt.Fprintf(out, "%d account(s) created, %d student(s) linked, %d error(s)\n",
					report.Created, report.Linked, len(report.Errors))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "default-password", "", "Initial password for created parent accounts")
	_ = cmd.MarkFlagRequired("default-password")
	return cmd
}
