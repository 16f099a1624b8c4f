package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/command-center/hive/internal/campaign"
	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/store"
	"github.com/command-center/hive/internal/tabular"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Create and inspect research campaigns",
}

// -- campaigns create --

var campaignsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending campaign from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		nc, err := loadCampaignFile(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c, err := st.CreateCampaign(ctx, nc)
		if err != nil {
			return eris.Wrap(err, "campaigns create")
		}
		_, _ = fmt.Fprintln(os.Stdout, c.ID)
		return nil
	},
}

// loadCampaignFile reads a campaign definition from YAML, normalizes and
// validates it.
func loadCampaignFile(path string) (model.NewCampaign, error) {
	var nc model.NewCampaign

	data, err := os.ReadFile(path)
	if err != nil {
		return nc, eris.Wrap(err, "read campaign file")
	}
	if err := yaml.Unmarshal(data, &nc); err != nil {
		return nc, eris.Wrap(err, "parse campaign file")
	}

	nc.Normalize()
	if err := nc.Validate(); err != nil {
		return nc, err
	}
	return nc, nil
}

// -- campaigns import --

var campaignsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create pending campaigns from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		ncs, err := loadCampaignSheet(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ids, err := createCampaigns(ctx, st, ncs)
		for _, id := range ids {
			_, _ = fmt.Fprintln(os.Stdout, id)
		}
		return err
	},
}

// loadCampaignSheet reads and validates every row before anything is
// created, so a bad file creates nothing.
func loadCampaignSheet(path string) ([]model.NewCampaign, error) {
	ncs, err := tabular.ReadCampaigns(path)
	if err != nil {
		return nil, err
	}
	if len(ncs) == 0 {
		return nil, eris.Errorf("no campaigns in %s", path)
	}
	for i := range ncs {
		ncs[i].Normalize()
		if err := ncs[i].Validate(); err != nil {
			return nil, eris.Wrapf(err, "campaign %d (%s)", i+1, ncs[i].Name)
		}
	}
	return ncs, nil
}

func createCampaigns(ctx context.Context, st store.Store, ncs []model.NewCampaign) ([]string, error) {
	ids := make([]string, 0, len(ncs))
	for _, nc := range ncs {
		c, err := st.CreateCampaign(ctx, nc)
		if err != nil {
			return ids, eris.Wrapf(err, "create campaign %q", nc.Name)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// -- campaigns list --

var campaignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.CampaignFilter{
			Status: model.CampaignStatus(status),
			UserID: user,
			Limit:  limit,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("unknown status %q", status)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		campaigns, err := st.ListCampaigns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "campaigns list")
		}

		if len(campaigns) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No campaigns found.")
			return nil
		}

		formatCampaignsList(os.Stdout, campaigns)
		return nil
	},
}

// -- campaigns show --

var campaignsShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "Show a campaign with its briefing and explorations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rv, err := loadReview(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rv)
		}
		formatReview(os.Stdout, rv)
		return nil
	},
}

// -- campaigns events --

var campaignsEventsCmd = &cobra.Command{
	Use:   "events <campaign-id>",
	Short: "Show a campaign's event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		events, err := st.ListEvents(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns events")
		}
		formatEvents(os.Stdout, events)
		return nil
	},
}

// -- campaigns pause --

var campaignsPauseCmd = &cobra.Command{
	Use:   "pause <campaign-id>",
	Short: "Ask a running campaign to stop dispatching work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := campaign.NewMachine(st).Pause(ctx, args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s paused\n", args[0])
		return nil
	},
}

// -- campaigns export --

var campaignsExportCmd = &cobra.Command{
	Use:   "export <campaign-id>",
	Short: "Export a campaign's explorations to CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		formatName, _ := cmd.Flags().GetString("format")

		var (
			f   tabular.Format
			err error
		)
		switch {
		case formatName != "":
			f, err = tabular.ParseFormat(formatName)
		case out != "":
			f, err = tabular.FormatFromPath(out)
		default:
			f = tabular.FormatCSV
		}
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var w io.Writer = os.Stdout
		if out != "" {
			fh, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "campaigns export: create output")
			}
			defer fh.Close() //nolint:errcheck
			w = fh
		}

		n, err := exportExplorations(ctx, st, args[0], f, w)
		if err != nil {
			return err
		}
		if out != "" {
			_, _ = fmt.Fprintf(os.Stderr, "Wrote %d explorations to %s\n", n, out)
		}
		return nil
	},
}

func exportExplorations(ctx context.Context, st store.Store, id string, f tabular.Format, w io.Writer) (int, error) {
	if _, err := st.GetCampaign(ctx, id); err != nil {
		return 0, eris.Wrap(err, "campaigns export")
	}
	exps, err := st.ListExplorations(ctx, id)
	if err != nil {
		return 0, eris.Wrap(err, "campaigns export")
	}
	if err := tabular.WriteExplorations(w, f, exps); err != nil {
		return 0, err
	}
	return len(exps), nil
}

func init() {
	campaignsCreateCmd.Flags().String("file", "campaign.yaml", "campaign definition (YAML)")
	campaignsImportCmd.Flags().String("file", "", "campaign sheet (.csv or .xlsx)")
	_ = campaignsImportCmd.MarkFlagRequired("file")

	campaignsListCmd.Flags().String("status", "", "filter by status (pending, running, paused, complete, failed)")
	campaignsListCmd.Flags().String("user", "", "filter by owning user id")
	campaignsListCmd.Flags().Int("limit", 50, "max number of campaigns to display")

	campaignsShowCmd.Flags().Bool("json", false, "print the review payload as JSON")

	campaignsExportCmd.Flags().String("format", "", "csv or xlsx (default from --out extension, else csv)")
	campaignsExportCmd.Flags().String("out", "", "output path (default stdout)")

	campaignsCmd.AddCommand(campaignsCreateCmd)
	campaignsCmd.AddCommand(campaignsImportCmd)
	campaignsCmd.AddCommand(campaignsListCmd)
	campaignsCmd.AddCommand(campaignsShowCmd)
	campaignsCmd.AddCommand(campaignsEventsCmd)
	campaignsCmd.AddCommand(campaignsPauseCmd)
	campaignsCmd.AddCommand(campaignsExportCmd)
	rootCmd.AddCommand(campaignsCmd)
}
