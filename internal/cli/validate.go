package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/walletprobe/internal/config"
	"github.com/wesleyorama2/walletprobe/internal/executor"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate configuration files without sending any traffic",
		Long: `Validate loads each file, applies defaults and checks the scenario,
workload, checks and thresholds. The signing secret is not required.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			invalid := 0

			for _, path := range args {
				summary, err := validateFile(path)
				if err != nil {
					invalid++
					fmt.Fprintf(out, "%s: invalid\n", path)
					var verrs *config.ValidationErrors
					if errors.As(err, &verrs) {
						for _, e := range verrs.Errors {
							fmt.Fprintf(out, "  %s: %s\n", e.Field, e.Message)
						}
					} else {
						fmt.Fprintf(out, "  %v\n", err)
					}
					continue
				}
				fmt.Fprintf(out, "%s: ok (%s)\n", path, summary)
			}

			if invalid > 0 {
				return &ExitError{Code: ExitConfigError, Err: fmt.Errorf("%d of %d configuration files are invalid", invalid, len(args))}
			}
			return nil
		},
	}
}

func validateFile(path string) (string, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return "", err
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	execCfg, err := cfg.ToExecutorConfig()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, %s, up to %d VUs, %d thresholds",
		execCfg.Type.Canonical(),
		executor.CalculateEstimatedDuration(execCfg),
		executor.CalculateMaxVUs(execCfg),
		countExpressions(cfg.Thresholds)), nil
}

func countExpressions(thresholds map[string][]string) int {
	n := 0
	for _, exprs := range thresholds {
		n += len(exprs)
	}
	return n
}
