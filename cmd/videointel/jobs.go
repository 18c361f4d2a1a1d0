package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/videointel/internal/cli"
	"github.com/fpang/videointel/internal/jobs"
	"github.com/fpang/videointel/internal/store"
)

var jobsLimitFlag int

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List recent jobs, or show one job as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimitFlag, "limit", store.DefaultListLimit, "Number of jobs to list")
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ledger, err := store.OpenSQLite(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()
	ctx := cmd.Context()

	if len(args) == 0 {
		list, err := ledger.ListJobs(ctx, jobsLimitFlag)
		if err != nil {
			return err
		}
		cli.PrintJobs(os.Stdout, list)
		return nil
	}

	job, err := ledger.GetJob(ctx, jobs.Normalize(args[0]))
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", args[0])
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
