package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "address-helper",
	Short: "Address enrichment for OpenStreetMap buildings",
	Long:  "Queries the cadastral map at each building's centroid, parses the returned postal address and proposes addr:street/addr:housenumber tags matched against the streets of the local dataset.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
