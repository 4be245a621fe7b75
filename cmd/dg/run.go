package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/models"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Delivery run commands",
	}

	cmd.AddCommand(newRunListCmd())
	cmd.AddCommand(newRunShowCmd())
	cmd.AddCommand(newRunValidateCmd())
	cmd.AddCommand(newRunSendCmd())
	cmd.AddCommand(newRunRetryCmd())
	cmd.AddCommand(newRunBatchSendCmd())
	cmd.AddCommand(newRunBatchRetryCmd())
	return cmd
}

func newRunListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		meetingID  string
		client     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List delivery runs",
		Long:  "Lists delivery runs with optional filters. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunList(cmd, configPath, delivery.ListFilters{
				Status:    status,
				MeetingID: meetingID,
				Client:    client,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&meetingID, "meeting", "", "filter by meeting ID")
	cmd.Flags().StringVar(&client, "client", "", "filter by client name")
	return cmd
}

func runRunList(cmd *cobra.Command, configPath string, filters delivery.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	runs, err := delivery.List(gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMEETING\tCLIENT\tSTATUS\tSCORE\tCREATED")
	for _, r := range runs {
		client := "-"
		if r.Meeting != nil {
			client = r.Meeting.ClientName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.MeetingID, client,
			delivery.Meta(r.Status).Label,
			delivery.ScoreLabel(r.QualityScore),
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func newRunShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show run details",
		Long:  "Displays full details of a delivery run including its step history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runRunShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	run, err := delivery.Get(gormDB, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", run.ID)
	fmt.Fprintf(out, "Meeting:   %s\n", run.MeetingID)
	if run.Meeting != nil {
		fmt.Fprintf(out, "Client:    %s\n", run.Meeting.ClientName)
		fmt.Fprintf(out, "Title:     %s\n", run.Meeting.Title)
	}
	fmt.Fprintf(out, "Status:    %s\n", delivery.Meta(run.Status).Label)
	fmt.Fprintf(out, "Score:     %s\n", delivery.ScoreLabel(run.QualityScore))
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", run.ErrorMessage)
	}
	if run.Recipients != "" {
		fmt.Fprintf(out, "Sent to:   %s\n", run.Recipients)
	}
	if run.DeliveredAt != nil {
		fmt.Fprintf(out, "Delivered: %s\n", run.DeliveredAt.Format("2006-01-02 15:04"))
	}
	if run.TotalTimeMs != nil {
		fmt.Fprintf(out, "Duration:  %dms\n", *run.TotalTimeMs)
	}

	if len(run.Steps) > 0 {
		fmt.Fprintf(out, "\nSteps (%d):\n", len(run.Steps))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ATTEMPT\tNAME\tSTATUS\tERROR")
		for _, s := range run.Steps {
			errMsg := "-"
			if s.Error != "" {
				errMsg = truncate(s.Error, 60)
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", s.Attempt, s.Name, s.Status, errMsg)
		}
		w.Flush()
	}

	if run.OutputContent != "" {
		fmt.Fprintf(out, "\nReport preview:\n%s\n", truncate(run.OutputContent, 400))
	}
	return nil
}

func newRunValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Run QA validation on a run",
		Long:  "Sends the generated report through the QA checkpoints and routes the run by verdict.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunValidate(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runRunValidate(cmd *cobra.Command, configPath, id string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	ctrl, err := buildController(cfg, gormDB)
	if err != nil {
		return err
	}

	result, err := ctrl.Validate(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %s (score %.2f)\n", id, result.Verdict, result.Score)
	for _, cp := range result.Checkpoints {
		fmt.Fprintf(out, "  %-16s %-16s %.2f\n", cp.Type, cp.Status, cp.Score)
		for _, issue := range cp.Issues {
			fmt.Fprintf(out, "    [%s] %s\n", issue.Severity, issue.Message)
		}
	}
	fmt.Fprintf(out, "Status: %s\n", delivery.Meta(result.Run.Status).Label)
	return nil
}

func newRunSendCmd() *cobra.Command {
	var (
		configPath string
		recipients []string
		approve    bool
	)

	cmd := &cobra.Command{
		Use:   "send <id>",
		Short: "Send a run's report to recipients",
		Long:  "Emails the generated report and marks the run delivered. Runs pending review need --approve.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunSend(cmd, configPath, args[0], recipients, approve)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "recipient email (repeatable, required)")
	cmd.Flags().BoolVar(&approve, "approve", false, "send even though the run is pending review")
	cmd.MarkFlagRequired("to")
	return cmd
}

func runRunSend(cmd *cobra.Command, configPath, id string, recipients []string, approve bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	ctrl, err := buildController(cfg, gormDB)
	if err != nil {
		return err
	}

	run, err := ctrl.Send(cmd.Context(), id, recipients, delivery.SendOpts{ApproveDespiteReview: approve})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s delivered to %s\n", run.ID, strings.Join(recipients, ", "))
	return nil
}

func newRunRetryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed run",
		Long:  "Requests regeneration for a failed run. Previous steps stay in the history under a new attempt.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunRetry(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runRunRetry(cmd *cobra.Command, configPath, id string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	ctrl, err := buildController(cfg, gormDB)
	if err != nil {
		return err
	}

	run, err := ctrl.Retry(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s queued for regeneration (attempt %d)\n", run.ID, lastAttempt(run.Steps))
	return nil
}

func newRunBatchSendCmd() *cobra.Command {
	var (
		configPath string
		recipients []string
		approve    bool
	)

	cmd := &cobra.Command{
		Use:   "batch-send <id>...",
		Short: "Send several runs in one go",
		Long:  "Sends each eligible run to the given recipients. Ineligible runs are skipped; per-run failures do not stop the rest.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunBatchSend(cmd, configPath, args, recipients, approve)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "recipient email (repeatable, required)")
	cmd.Flags().BoolVar(&approve, "approve", false, "include runs pending review")
	cmd.MarkFlagRequired("to")
	return cmd
}

func runRunBatchSend(cmd *cobra.Command, configPath string, ids, recipients []string, approve bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	ctrl, err := buildController(cfg, gormDB)
	if err != nil {
		return err
	}

	results := ctrl.BatchSend(cmd.Context(), ids, recipients, delivery.SendOpts{ApproveDespiteReview: approve})
	printBatchResults(cmd, "sent", results)
	return nil
}

func newRunBatchRetryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "batch-retry <id>...",
		Short: "Retry several failed runs in one go",
		Long:  "Retries each run that is in failed status. Others are skipped; per-run failures do not stop the rest.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunBatchRetry(cmd, configPath, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runRunBatchRetry(cmd *cobra.Command, configPath string, ids []string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	ctrl, err := buildController(cfg, gormDB)
	if err != nil {
		return err
	}

	results := ctrl.BatchRetry(cmd.Context(), ids)
	printBatchResults(cmd, "retried", results)
	return nil
}

func lastAttempt(steps []models.DeliveryStep) int {
	attempt := 1
	for _, s := range steps {
		if s.Attempt > attempt {
			attempt = s.Attempt
		}
	}
	return attempt
}

func printBatchResults(cmd *cobra.Command, verb string, results []delivery.BatchResult) {
	out := cmd.OutOrStdout()
	var ok, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
			fmt.Fprintf(out, "  %s: skipped (not eligible)\n", r.ID)
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "  %s: %v\n", r.ID, r.Err)
		default:
			ok++
			fmt.Fprintf(out, "  %s: %s\n", r.ID, verb)
		}
	}
	fmt.Fprintf(out, "%d %s, %d skipped, %d failed\n", ok, verb, skipped, failed)
}
