package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/datagoal/datagoal/internal/models"
	"github.com/spf13/cobra"
)

func newMeetingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Meeting management commands",
	}

	cmd.AddCommand(newMeetingListCmd())
	cmd.AddCommand(newMeetingShowCmd())
	cmd.AddCommand(newMeetingDeliverCmd())
	return cmd
}

func newMeetingListCmd() *cobra.Command {
	var (
		configPath string
		client     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		Long:  "Lists recorded meetings with optional client filter. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingList(cmd, configPath, client)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	cmd.Flags().StringVar(&client, "client", "", "filter by client name")
	return cmd
}

func runMeetingList(cmd *cobra.Command, configPath, client string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	q := gormDB.Model(&models.Meeting{})
	if client != "" {
		q = q.Where("client_name = ?", client)
	}

	var meetings []models.Meeting
	if err := q.Order("occurred_at DESC").Find(&meetings).Error; err != nil {
		return fmt.Errorf("list meetings: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(meetings) == 0 {
		fmt.Fprintln(out, "No meetings found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENT\tPROJECT\tTITLE\tOCCURRED")
	for _, m := range meetings {
		occurred := "-"
		if !m.OccurredAt.IsZero() {
			occurred = m.OccurredAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.ClientName, m.ProjectName, truncate(m.Title, 40), occurred)
	}
	w.Flush()
	return nil
}

func newMeetingShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show meeting details",
		Long:  "Displays full details of a meeting including its delivery runs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runMeetingShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	var m models.Meeting
	if err := gormDB.Preload("Runs").Where("id = ?", id).First(&m).Error; err != nil {
		return fmt.Errorf("meeting not found: %s", id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", m.ID)
	fmt.Fprintf(out, "Client:   %s\n", m.ClientName)
	if m.ProjectName != "" {
		fmt.Fprintf(out, "Project:  %s\n", m.ProjectName)
	}
	fmt.Fprintf(out, "Title:    %s\n", m.Title)
	if !m.OccurredAt.IsZero() {
		fmt.Fprintf(out, "Occurred: %s\n", m.OccurredAt.Format("2006-01-02 15:04"))
	}

	if len(m.Runs) > 0 {
		fmt.Fprintf(out, "\nRuns (%d):\n", len(m.Runs))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ID\tSTATUS\tSCORE\tCREATED")
		for _, r := range m.Runs {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				r.ID, delivery.Meta(r.Status).Label,
				delivery.ScoreLabel(r.QualityScore),
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
	}
	return nil
}

func newMeetingDeliverCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deliver <meeting-id>",
		Short: "Start a delivery run for a meeting",
		Long:  "Creates a new delivery run and asks the generation pipeline to produce the report.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingDeliver(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runMeetingDeliver(cmd *cobra.Command, configPath, meetingID string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	run, err := delivery.Create(gormDB, meetingID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created run %s for meeting %s\n", run.ID, meetingID)

	if cfg.Pipeline.Endpoint == "" {
		fmt.Fprintln(out, "No pipeline endpoint configured; report generation must be completed externally.")
		return nil
	}

	gen := delivery.NewHTTPGenerator(cfg.Pipeline.Endpoint, cfg.Pipeline.APIKey)
	if err := gen.StartGeneration(cmd.Context(), run); err != nil {
		return fmt.Errorf("start generation for %s: %w", run.ID, err)
	}
	fmt.Fprintf(out, "Generation started for %s\n", run.ID)
	return nil
}
