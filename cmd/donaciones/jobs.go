package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Subscription billing tasks",
	}

	var reminders bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Charge every subscription due today",
		Long: `Charge every active subscription whose next charge date has arrived.

This is the same pass the scheduler runs once a day. With --reminders the
upcoming charge reminders are sent afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.scheduler.RunBilling(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, charged %d, skipped %d, failed %d\n",
				report.Processed, report.Charged, report.Skipped, report.Failed)

			if reminders {
				sent := a.scheduler.RunReminders(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "reminders sent: %d\n", sent)
			}
			return nil
		},
	}
	run.Flags().BoolVar(&reminders, "reminders", false, "send upcoming charge reminders after billing")

	cmd.AddCommand(run)
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Statistics tasks",
	}

	var year, month int
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute and store the statistics of a month",
		Long: `Compute and store the statistics of a month. Running it again for the
same month overwrites the previous snapshot.

Without flags the previous calendar month is used.

Examples:
  donaciones stats snapshot
  donaciones stats snapshot --year 2024 --month 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var stat *models.MonthlyStatistic
			if year == 0 && month == 0 {
				stat, err = a.statistics.GeneratePreviousMonth(ctx, time.Now())
			} else {
				stat, err = a.statistics.GenerateMonthly(ctx, year, month)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d-%02d: %s raised in %d donations from %d donors\n",
				stat.Year, stat.Month, stat.TotalAmount.StringFixed(2), stat.DonationCount, stat.UniqueDonors)
			return nil
		},
	}
	snapshot.Flags().IntVar(&year, "year", 0, "year of the snapshot")
	snapshot.Flags().IntVar(&month, "month", 0, "month of the snapshot (1-12)")

	cmd.AddCommand(snapshot)
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
