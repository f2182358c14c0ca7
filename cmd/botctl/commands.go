package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyellow/convobot-go/internal/buildinfo"
	"github.com/garyellow/convobot-go/internal/config"
	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/connector/line"
	"github.com/garyellow/convobot-go/internal/connector/rest"
	"github.com/garyellow/convobot-go/internal/install"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/r2client"
	"github.com/garyellow/convobot-go/internal/snapshot"
	"github.com/garyellow/convobot-go/internal/storage"
)

func newRoot(log *logger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "botctl",
		Short:        "Operate a convobot deployment",
		SilenceUsage: true,
	}

	root.AddCommand(newValidateCommand())
	root.AddCommand(newConfigurationsCommand())
	root.AddCommand(newSnapshotCommand(log))
	root.AddCommand(newVersionCommand())
	return root
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a connector declarations file",
		Long:  "Parses the declarations, checks duplicate connector ids and unknown connector types. Defaults to $" + config.EnvConnectorsFile + ".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := os.Getenv(config.EnvConnectorsFile)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no declarations file: pass one or set %s", config.EnvConnectorsFile)
			}
			return validateDeclarations(cmd, path)
		},
	}
}

func validateDeclarations(cmd *cobra.Command, path string) error {
	decls, err := config.LoadDeclarations(path)
	if err != nil {
		return err
	}
	declared := decls.ToConfigurations()
	if err := install.CheckIntegrity(declared); err != nil {
		return err
	}

	connectors := connector.NewRegistry()
	connectors.MustRegister(rest.Provider{}, &line.Provider{})
	for _, c := range declared {
		if _, err := connectors.Resolve(c.Type); err != nil {
			return fmt.Errorf("connector %q: %w", c.ConnectorID, err)
		}
	}

	cmd.Printf("%s: %d bot(s), %d connector(s) OK\n", filepath.Base(path), len(decls.Bots), len(declared))
	return nil
}

func newConfigurationsCommand() *cobra.Command {
	var (
		dataDir string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "configurations <botId>",
		Short: "List the persisted application configurations of a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				dataDir = cfg.DataDir
			}

			ctx := cmd.Context()
			db, err := storage.New(ctx, filepath.Join(dataDir, "convobot.db"))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			records, err := db.GetConfigurationsByBotID(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printConfigurations(cmd, records)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding convobot.db (defaults to $"+config.EnvDataDir+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printConfigurations(cmd *cobra.Command, records []storage.ApplicationConfiguration) error {
	if len(records) == 0 {
		cmd.Println("no configurations")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "APPLICATION\tNAMESPACE\tTYPE\tPATH\tEDITED")
	for _, r := range records {
		typ := string(r.ConnectorType)
		if r.OwnerConnectorType != "" {
			typ += " (" + string(r.OwnerConnectorType) + ")"
		}
		path := r.Path
		if path == "" {
			path = r.Connector().RoutePath(r.BotID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", r.ApplicationID, r.Namespace, typ, path, r.ManuallyModified)
	}
	return w.Flush()
}

func newSnapshotCommand(log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Upload a snapshot of the database now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx, cancelUpload := context.WithTimeout(ctx, config.SnapshotUpload)
			defer cancelUpload()

			store, err := r2client.New(ctx, r2client.Config{
				Endpoint:    cfg.R2Endpoint,
				AccessKeyID: cfg.R2AccessKeyID,
				SecretKey:   cfg.R2SecretKey,
				Bucket:      cfg.R2BucketName,
			})
			if err != nil {
				return err
			}
			db, err := storage.New(ctx, cfg.SQLitePath())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			mgr := snapshot.New(store, snapshot.Config{
				Key:      cfg.SnapshotKey,
				LeaseKey: cfg.SnapshotKey + ".lease",
				TempDir:  cfg.DataDir,
			}, nil, log)
			etag, err := mgr.Upload(ctx, db)
			if err != nil {
				return err
			}
			cmd.Printf("uploaded %s (etag %s)\n", cfg.SnapshotKey, strings.Trim(etag, `"`))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			version := buildinfo.Version
			if version == "" {
				version = "dev"
			}
			cmd.Printf("botctl %s", version)
			if buildinfo.Commit != "" {
				cmd.Printf(" (%s)", buildinfo.Commit)
			}
			cmd.Println()
		},
	}
}
