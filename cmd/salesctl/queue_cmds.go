package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesimport/internal/application"
	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/database"
	"github.com/JonMunkholm/salesimport/internal/queue"
)

func newEnqueueCmd(c *cli) *cobra.Command {
	var platformName, file string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Store a CSV file and queue it for the import workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.cfg.Queue.Enabled {
				return withCode(exitUsage, errors.New("the import queue is disabled (QUEUE_ENABLED=false)"))
			}
			jobID, err := runEnqueue(cmd.Context(), c.cfg, platformName, file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&platformName, "platform", "", "Platform name (required)")
	cmd.Flags().StringVar(&file, "file", "", "CSV file to queue (required)")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runEnqueue(ctx context.Context, cfg *config.Config, platformName, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", withCode(exitUsage, fmt.Errorf("open --file: %w", err))
	}
	defer f.Close()

	app, err := application.New(ctx, cfg)
	if err != nil {
		return "", withCode(exitDB, err)
	}
	defer app.Close()

	if _, err := app.Platforms.Resolve(ctx, platformName); err != nil {
		return "", &core.ConfigurationError{Platform: platformName, Err: err}
	}

	handle, err := app.Sources.Save(ctx, filepath.Base(file), f)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	jobID, err := queue.NewScheduler(app.Broker).Enqueue(ctx, platformName, handle)
	if err != nil {
		if delErr := app.Sources.Delete(context.WithoutCancel(ctx), handle); delErr != nil {
			fmt.Fprintln(os.Stderr, "warning: failed to discard stored file:", delErr)
		}
		return "", err
	}
	return jobID, nil
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the recorded state of an import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := database.Connect(cmd.Context(), c.cfg.Database)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()

			run, err := database.NewRunRepo(pool).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}
}
