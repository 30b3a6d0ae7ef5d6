package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/profile"
)

func newProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEXECUTOR\tDURATION\tMAX VUS\tDESCRIPTION")
			for _, name := range profile.Names() {
				cfg, err := profile.Get(name)
				if err != nil {
					return err
				}
				execCfg, err := cfg.ToExecutorConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					name,
					execCfg.Type.Canonical(),
					execCfg.TotalDuration(),
					executor.CalculateMaxVUs(execCfg),
					cfg.Description)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print a built-in profile as YAML, ready to edit and pass to --config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := profile.Get(args[0])
			if err != nil {
				return configError(err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})

	return cmd
}
