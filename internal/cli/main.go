// Package cli implements studioctl, the command line front end of the
// pipeline.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studio/internal/bootstrap"
	"studio/internal/infra"
	"studio/internal/media"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "studioctl",
		Short:         "Run creative studio pipeline operations from the shell",
		Long: `Run creative studio pipeline operations from the shell.

Generated outputs are recorded in history only when DATABASE_URL is set;
otherwise they are written to the output paths and nothing is kept.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Log pipeline events to stderr")

	root.AddCommand(
		newIngestCommand(),
		newExtractCommand(),
		newRecomposeCommand(),
		newVideoCommand(),
		newImagesCommand(),
		newPoseCommand(),
		newCredentialsCommand(),
		newHistoryCommand(),
	)
	return root
}

// env loads configuration and a logger. Logs go to stderr and are silent
// unless --verbose is set.
func env(cmd *cobra.Command) (*infra.Config, *infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := infra.NewCLILogger(cmd.ErrOrStderr(), verbose)
	return cfg, &logger, nil
}

func build(cmd *cobra.Command) (*bootstrap.Components, error) {
	cfg, logger, err := env(cmd)
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cmd.Context(), cfg, logger)
}

func readImage(path string) (media.ImageAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return media.ImageAsset{}, err
	}
	if len(data) == 0 {
		return media.ImageAsset{}, fmt.Errorf("%s is empty", path)
	}
	return media.ImageAsset{Data: data, MIMEType: http.DetectContentType(data)}, nil
}

func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
