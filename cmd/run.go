package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <campaign-id>",
	Short: "Run a pending campaign to completion",
	Long:  "Runs one pending campaign synchronously and prints its run summary as JSON. Interrupting marks the campaign failed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, runErr := env.Runner.Run(ctx, args[0])
		if summary != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return eris.Wrap(err, "run: encode summary")
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
