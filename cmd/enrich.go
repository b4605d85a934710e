package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/config"
	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/enrich"
	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/report"
)

var (
	enrichInput  string
	enrichOutput string
	enrichIDs    string
	enrichAll    bool
	enrichApply  bool
	enrichReport string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Propose address tags for buildings",
	Long: `Runs one enrichment batch. With --input the buildings come from a GeoJSON
file and the enriched dataset is written to --output. Otherwise buildings are
read from the configured store (--ids or --all) and --apply writes the tags
back as one changeset.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeEnrich); err != nil {
			return err
		}
		opts, err := batchOptions()
		if err != nil {
			return err
		}

		var res *enrich.Result
		if enrichInput != "" {
			res, err = enrichFile(ctx, opts)
		} else {
			res, err = enrichStore(ctx, opts)
		}
		if err != nil {
			return err
		}

		if enrichReport != "" {
			if err := report.WriteXLSX(enrichReport, res); err != nil {
				return eris.Wrap(err, "write report")
			}
		}

		changesetID := ""
		if res.Applied {
			changesetID = res.Changeset.ID
		}
		zap.L().Info("enrich complete",
			zap.Int("requested", res.Requested),
			zap.Int("skipped", len(res.Skipped)),
			zap.Int("tagged", len(res.Buildings)),
			zap.Int("unresolved_streets", len(res.Unresolved)),
			zap.String("changeset", changesetID),
		)
		for _, p := range res.Proposals() {
			printf("%s\t%s=%s\n", p.PrimitiveID, p.Key, p.Value)
		}
		return nil
	},
}

func enrichFile(ctx context.Context, opts enrich.Options) (*enrich.Result, error) {
	if enrichOutput == "" {
		return nil, eris.New("--output is required with --input")
	}
	prims, err := dataset.LoadGeoJSONFile(enrichInput)
	if err != nil {
		return nil, eris.Wrap(err, "load input")
	}

	mem := dataset.NewMemory(prims...)
	opts.Dataset, opts.Writer = mem, mem
	res, err := runBatch(ctx, buildingsOf(prims), opts)
	if err != nil {
		return nil, err
	}

	all, err := mem.Primitives(ctx)
	if err != nil {
		return nil, err
	}
	if err := dataset.WriteGeoJSONFile(enrichOutput, all); err != nil {
		return nil, eris.Wrap(err, "write output")
	}
	return res, nil
}

func enrichStore(ctx context.Context, opts enrich.Options) (*enrich.Result, error) {
	if err := cfg.Validate(config.ModeStore); err != nil {
		return nil, err
	}
	ids := splitIDs(enrichIDs)
	if !enrichAll && len(ids) == 0 {
		return nil, eris.New("one of --input, --ids or --all is required")
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	var prims []*model.Primitive
	if enrichAll {
		all, err := st.Primitives(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "load primitives")
		}
		prims = buildingsOf(all)
	} else {
		prims, err = st.GetPrimitives(ctx, ids)
		if err != nil {
			return nil, eris.Wrap(err, "load primitives")
		}
	}

	opts.Dataset = st
	if enrichApply {
		opts.Writer = st
	}
	return runBatch(ctx, prims, opts)
}

func runBatch(ctx context.Context, prims []*model.Primitive, opts enrich.Options) (*enrich.Result, error) {
	batch, err := enrich.NewBatch(prims, opts)
	if err != nil {
		return nil, err
	}
	res, err := batch.Load(ctx, progressListener(batch.Size()))
	if err != nil {
		return nil, eris.Wrap(err, "enrich batch")
	}
	return res, nil
}

// buildingsOf keeps the primitives tagged as buildings.
func buildingsOf(prims []*model.Primitive) []*model.Primitive {
	var out []*model.Primitive
	for _, p := range prims {
		if p.IsBuilding() {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	enrichCmd.Flags().StringVar(&enrichInput, "input", "", "GeoJSON file with buildings and roads")
	enrichCmd.Flags().StringVar(&enrichOutput, "output", "", "GeoJSON file to write the enriched dataset to")
	enrichCmd.Flags().StringVar(&enrichIDs, "ids", "", "comma-separated primitive ids from the store")
	enrichCmd.Flags().BoolVar(&enrichAll, "all", false, "enrich every building in the store")
	enrichCmd.Flags().BoolVar(&enrichApply, "apply", false, "write proposed tags to the store as one changeset")
	enrichCmd.Flags().StringVar(&enrichReport, "report", "", "write an XLSX report to this path")
	enrichCmd.MarkFlagsMutuallyExclusive("input", "ids", "all")
	rootCmd.AddCommand(enrichCmd)
}
