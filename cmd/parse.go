package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/address-helper/internal/config"
	"github.com/sells-group/address-helper/internal/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse <address>",
	Short: "Parse a cadastral address against the store's streets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		house, street, err := loadPatterns()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		streets, err := parser.NewStreetParser(ctx, st, street)
		if err != nil {
			return eris.Wrap(err, "build street index")
		}

		address := strings.Join(args, " ")
		sp := streets.Parse(address)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"address":     address,
			"street":      sp.Name,
			"extracted":   sp.Extracted,
			"housenumber": parser.NewHouseNumberParser(house).Parse(address),
		})
	},
}

var streetsCmd = &cobra.Command{
	Use:   "streets",
	Short: "List the street index built from the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}
		_, street, err := loadPatterns()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		streets, err := parser.NewStreetParser(ctx, st, street)
		if err != nil {
			return eris.Wrap(err, "build street index")
		}
		for _, s := range streets.Streets() {
			printf("%s\t%s\n", s.Name, s.Core)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(streetsCmd)
}
