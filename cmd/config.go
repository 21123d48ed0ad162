package cmd

import (
	"encoding/json"

	"github.com/pme-sh/lrpc/config"

	"github.com/spf13/cobra"
)

func init() {
	configCmd := &cobra.Command{
		Use:     "config",
		Short:   "Inspect or create the configuration file",
		GroupID: refGroup("config", "Configuration Commands"),
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(config.Path())
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the configuration file with every default filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Update(nil); err != nil {
				return err
			}
			cmd.Println("wrote", config.Path())
			return nil
		},
	})
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Get()
			if err != nil {
				return err
			}
			var res []byte
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				res, err = json.MarshalIndent(cfg, "", "  ")
			} else {
				res, err = config.Marshal(cfg)
			}
			if err != nil {
				return err
			}
			cmd.Println(string(res))
			return nil
		},
	}
	showCmd.Flags().Bool("json", false, "Output in JSON format")
	configCmd.AddCommand(showCmd)
	config.RootCommand.AddCommand(configCmd)
}
