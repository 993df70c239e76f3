package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"imagetolink/internal/models"
)

func newSettingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the upload settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the settings panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := a.settingsManager()
			if err != nil {
				return err
			}
			s, err := mgr.Load(cmd.Context())
			if err != nil {
				return err
			}
			printPanel(cmd.OutOrStdout(), s)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <field> <value>",
		Short: "Change one field: api_url, headers, body or target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := a.settingsManager()
			if err != nil {
				return err
			}
			s, err := mgr.Set(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printPanel(cmd.OutOrStdout(), s)
			return nil
		},
	})
	return cmd
}

func printPanel(w io.Writer, s models.UploadSettings) {
	for _, f := range models.SettingFields() {
		fmt.Fprintf(w, "%s %s\n", bold(f.Label), gray("("+f.Name+")"))
		fmt.Fprintf(w, "  %s\n", gray(f.Description))
		fmt.Fprintf(w, "  %s\n\n", f.Get(&s))
	}
}
