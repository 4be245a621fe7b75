package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/datagoal/datagoal/internal/config"
	"github.com/datagoal/datagoal/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Data Goal database",
		Long:  "Creates the database (MySQL mode) and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for owner %q from %s\n", cfg.Owner, configPath)

	if cfg.Mode == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.MySQL.Host, cfg.MySQL.Port)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", cfg.MySQL.Host, cfg.MySQL.Port, err)
		}
		if err := db.CreateDatabase(adminDB, cfg.MySQL.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.MySQL.Database)
	}

	gormDB, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nData Goal database initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Data Goal database",
		Long:  "Drops the database named in config, re-creates it, and migrates all tables. MySQL mode only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Mode != "mysql" {
		return fmt.Errorf("db reset requires mysql mode; delete the SQLite file (%s) instead", cfg.SQLite.Path)
	}
	fmt.Fprintf(out, "Loaded config for owner %q from %s\n", cfg.Owner, configPath)

	if !skipConfirm {
		if !confirmReset(cmd, cfg.MySQL.Database) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	adminDB, err := db.ConnectAdmin(cfg.MySQL.Host, cfg.MySQL.Port)
	if err != nil {
		return fmt.Errorf("connect to MySQL at %s:%d: %w", cfg.MySQL.Host, cfg.MySQL.Port, err)
	}

	if err := db.DropDatabase(adminDB, cfg.MySQL.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped database %s\n", cfg.MySQL.Database)

	if err := db.CreateDatabase(adminDB, cfg.MySQL.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s re-created\n", cfg.MySQL.Database)

	gormDB, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nData Goal database reset successfully.")
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed demo meetings and runs",
		Long:  "Inserts sample meetings and delivery runs for trying out the pipeline locally. Safe to run twice.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runDBSeed(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedDemo(gormDB); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Seeded demo meetings and runs.")
	return nil
}

func confirmReset(cmd *cobra.Command, dbName string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in database %q.\n", dbName)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
