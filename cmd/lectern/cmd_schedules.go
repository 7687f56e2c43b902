/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var schedulesPendingOnly bool

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Inspect audio schedules",
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules, newest first",
	RunE:  runSchedulesList,
}

var schedulesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire missed schedules and drop finished ones older than an hour",
	Long:  "Apply the startup recovery and retention sweep to the configured store. Run while the server is stopped.",
	RunE:  runSchedulesCleanup,
}

func init() {
	schedulesListCmd.Flags().BoolVar(&schedulesPendingOnly, "pending", false, "Only pending schedules, soonest first")
	schedulesCmd.AddCommand(schedulesListCmd, schedulesCleanupCmd)
	rootCmd.AddCommand(schedulesCmd)
}

func runSchedulesList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	sched, closeFn, err := openScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	list := sched.Schedules()
	if schedulesPendingOnly {
		list = sched.Pending()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAUDIO\tSCHEDULED\tSTATUS")
	for _, rec := range list {
		status := string(rec.Status)
		if rec.SkipReason != "" {
			status += " (" + string(rec.SkipReason) + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.ID, rec.AudioName, rec.ScheduledTime.In(cfg.Location).Format(time.DateTime), status)
	}
	return w.Flush()
}

func runSchedulesCleanup(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	sched, closeFn, err := openScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	removed := sched.Cleanup()
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d finished schedules, %d pending\n", removed, len(sched.Pending()))
	return nil
}
