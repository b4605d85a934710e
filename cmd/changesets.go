package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/config"
	"github.com/sells-group/address-helper/internal/dataset"
)

var (
	changesetsLimit  int
	changesetsOffset int
	changesetsUndone bool
)

var changesetsCmd = &cobra.Command{
	Use:   "changesets",
	Short: "List changesets written by enrich --apply",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListChangesets(ctx, dataset.ChangesetFilter{
			IncludeUndone: changesetsUndone,
			Limit:         changesetsLimit,
			Offset:        changesetsOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list changesets")
		}

		for _, cs := range list {
			status := "active"
			if cs.UndoneAt != nil {
				status = "undone " + cs.UndoneAt.Format(time.RFC3339)
			}
			printf("%s\t%s\t%d changes\t%s\t%s\n",
				cs.ID, cs.CreatedAt.Format(time.RFC3339), len(cs.Changes), status, cs.Comment)
		}
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <changeset-id>",
	Short: "Revert every tag written by a changeset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UndoChangeset(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "undo changeset %s", args[0])
		}
		zap.L().Info("changeset undone", zap.String("id", args[0]))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return st.Close()
	},
}

func init() {
	changesetsCmd.Flags().IntVar(&changesetsLimit, "limit", 20, "maximum changesets to list (0 for all)")
	changesetsCmd.Flags().IntVar(&changesetsOffset, "offset", 0, "changesets to skip")
	changesetsCmd.Flags().BoolVar(&changesetsUndone, "include-undone", false, "also list undone changesets")
	rootCmd.AddCommand(changesetsCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(migrateCmd)
}
