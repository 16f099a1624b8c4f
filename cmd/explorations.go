package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/command-center/hive/internal/model"
)

var explorationsCmd = &cobra.Command{
	Use:   "explorations",
	Short: "Review exploration results",
}

var explorationsCurateCmd = &cobra.Command{
	Use:   "curate <exploration-id>",
	Short: "Record a human verdict on an exploration",
	Long:  "Sets the curation status of an exploration to valuable, noise or archive. Each exploration can be curated once.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, _ := cmd.Flags().GetString("status")
		status := model.CurationStatus(s)
		if !status.Reviewable() {
			return eris.Errorf("status must be valuable, noise or archive (got %q)", s)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.CurateExploration(ctx, args[0], status); err != nil {
			return eris.Wrap(err, "explorations curate")
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", args[0], status)
		return nil
	},
}

func init() {
	explorationsCurateCmd.Flags().String("status", "", "valuable, noise or archive")
	_ = explorationsCurateCmd.MarkFlagRequired("status")

	explorationsCmd.AddCommand(explorationsCurateCmd)
	rootCmd.AddCommand(explorationsCmd)
}
