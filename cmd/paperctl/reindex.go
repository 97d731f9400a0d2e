package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperpedia/api/internal/search"
	"paperpedia/api/internal/store"
)

func newReindexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every article into Meilisearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.MeiliURL == "" {
				return fmt.Errorf("meili_url is not configured")
			}
			log := opts.logger(cfg)

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
			defer meili.Close()

			n, err := search.NewService(meili, nil, log).ReindexAll(cmd.Context(), store.NewPostgresStore(db))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d articles\n", n)
			return nil
		},
	}
}
