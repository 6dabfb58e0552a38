package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/example/cmsshop/pkg/reconcile"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Open payment sessions for Pending orders that never got one",
		Long: `Find Pending orders older than --older-than that have no payment row
and open a fresh checkout session for each of them.

Examples:
  cmsshop reconcile --older-than 30m
  cmsshop reconcile --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			svc, err := reconcile.Start(a.checkout, a.logger.Named("reconcile"), 2*time.Minute)
			if err != nil {
				return err
			}
			defer svc.Stop()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if dryRun {
				orders, err := svc.FindUnpaid(olderThan)
				if err != nil {
					return err
				}
				return enc.Encode(orders)
			}

			res, err := svc.Sweep(olderThan)
			if err != nil {
				return err
			}
			return enc.Encode(res)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "only consider orders created before now minus this duration")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the orders without opening sessions")
	return cmd
}
