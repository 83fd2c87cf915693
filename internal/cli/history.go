package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"studio/internal/bootstrap"
	"studio/internal/domain"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and clear generation history",
		Long:  "Inspect and clear generation history stored in the database named by DATABASE_URL.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List history items, newest first",
			Args:  cobra.NoArgs,
			RunE: withHistory(func(cmd *cobra.Command, c *bootstrap.Components) error {
				items, err := c.History.Items(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tMODE\tTIME\tDATA")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Type, it.Mode, it.Timestamp.Local().Format(time.DateTime), summarize(it))
				}
				return tw.Flush()
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every history item and archived file",
			Args:  cobra.NoArgs,
			RunE: withHistory(func(cmd *cobra.Command, c *bootstrap.Components) error {
				return c.History.Clear(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "prompts",
			Short: "List recently used prompts",
			Args:  cobra.NoArgs,
			RunE: withHistory(func(cmd *cobra.Command, c *bootstrap.Components) error {
				prompts, err := c.History.Prompts(cmd.Context())
				if err != nil {
					return err
				}
				for _, p := range prompts {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}),
		},
	)
	return cmd
}

var errHistoryNeedsDatabase = errors.New("history needs DATABASE_URL: without a database each command keeps history in memory and drops it on exit")

func withHistory(fn func(cmd *cobra.Command, c *bootstrap.Components) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := env(cmd)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errHistoryNeedsDatabase
		}
		c, err := bootstrap.Build(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd, c)
	}
}

func summarize(it domain.HistoryItem) string {
	const limit = 60
	s := it.Data
	if len([]rune(s)) > limit {
		s = string([]rune(s)[:limit-3]) + "..."
	}
	return s
}
