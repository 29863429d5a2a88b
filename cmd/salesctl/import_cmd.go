package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesimport/internal/application"
	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/database"
	"github.com/JonMunkholm/salesimport/internal/platform"
)

type importOptions struct {
	platform string
	file     string
	configs  string
}

func newImportCmd(c *cli) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV file synchronously and print the run summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), c.cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.platform, "platform", "", "Platform name (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&opts.configs, "configs", "", "Platform config document to load before importing")

	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("file")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		opts.platform = strings.TrimSpace(opts.platform)
		if opts.platform == "" {
			return withCode(exitUsage, fmt.Errorf("--platform is required"))
		}
		return nil
	}

	return cmd
}

func runImport(ctx context.Context, cfg *config.Config, opts importOptions) error {
	f, err := os.Open(opts.file)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("open --file: %w", err))
	}
	defer f.Close()

	local := *cfg
	local.Queue.Enabled = false
	app, err := application.New(ctx, &local)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer app.Close()

	if opts.configs != "" {
		if err := loadConfigs(ctx, app.DB, opts.configs, cfg.Import.DefaultBatchSize); err != nil {
			return err
		}
	}

	summary, err := app.Importer.Run(ctx, opts.platform, f)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			return encErr
		}
	}
	return err
}

// loadConfigs upserts every platform in the document at path.
func loadConfigs(ctx context.Context, db database.TxBeginner, path string, defaultBatchSize int) error {
	doc, err := platform.LoadDocument(path)
	if err != nil {
		return withCode(exitValidation, err)
	}
	created, updated, err := database.LoadDocument(ctx, db, doc, defaultBatchSize)
	if err != nil {
		return withCode(exitDB, err)
	}
	fmt.Fprintf(os.Stderr, "platform configs loaded: %d created, %d updated (%s)\n",
		created, updated, strings.Join(doc.Names(), ", "))
	return nil
}
