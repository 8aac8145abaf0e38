package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/seed"
)

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load default configuration keys and the reward catalog",
		Long: `Load default configuration keys and the reward catalog from a YAML file.

Rows that already exist (same clave or nombre) are left untouched, so the
command can be run on every deploy.

Examples:
  donaciones seed --file seed.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.Load(file)
			if err != nil {
				return err
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := f.Apply(
				repository.NewConfigurationRepository(db),
				repository.NewRewardRepository(db),
				repository.IsNotFound,
				log.Named("seed"),
			)
			if err != nil {
				return fmt.Errorf("failed to apply seed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"configuraciones: %d created, %d skipped\nrecompensas: %d created, %d skipped\n",
				res.ConfigurationsCreated, res.ConfigurationsSkipped, res.RewardsCreated, res.RewardsSkipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "seed file")
	return cmd
}
