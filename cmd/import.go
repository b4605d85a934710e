package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/config"
	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/fetcher"
	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/pkg/overpass"
)

var (
	importGeoJSON  string
	importShp      string
	importOverpass string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load buildings and roads into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeStore); err != nil {
			return err
		}

		prims, source, err := loadImport(ctx)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PutPrimitives(ctx, prims)
		if err != nil {
			return eris.Wrap(err, "import primitives")
		}

		zap.L().Info("import complete",
			zap.String("source", source),
			zap.Int("primitives", n),
		)
		return nil
	},
}

func loadImport(ctx context.Context) ([]*model.Primitive, string, error) {
	switch {
	case importGeoJSON != "":
		path, cleanup, err := localizeSource(ctx, importGeoJSON, ".geojson")
		if err != nil {
			return nil, "", err
		}
		defer cleanup()
		prims, err := dataset.LoadGeoJSONFile(path)
		return prims, importGeoJSON, eris.Wrap(err, "load geojson")
	case importShp != "":
		path, cleanup, err := localizeSource(ctx, importShp, ".shp")
		if err != nil {
			return nil, "", err
		}
		defer cleanup()
		prims, err := dataset.LoadShapefile(path)
		return prims, importShp, eris.Wrap(err, "load shapefile")
	case importOverpass != "":
		bbox, err := overpass.ParseBBox(importOverpass)
		if err != nil {
			return nil, "", err
		}
		client := overpass.NewClient(cfg.Overpass.URL, cfg.Overpass.Timeout())
		prims, err := client.Fetch(ctx, bbox)
		return prims, "overpass " + bbox.String(), eris.Wrap(err, "fetch overpass")
	default:
		return nil, "", eris.New("one of --geojson, --shp or --overpass is required")
	}
}

// localizeSource downloads http(s) and ftp sources into a temp dir. Remote
// shapefiles must be zip archives holding the .shp with its .dbf and .shx.
func localizeSource(ctx context.Context, src, ext string) (string, func(), error) {
	if !fetcher.IsRemote(src) {
		return src, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "address-helper-import-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "import: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path, err := fetcher.Localize(ctx, src, ext, dir, fetcher.Options{
		UserAgent: cfg.EGRN.UserAgent,
		Timeout:   cfg.Import.Timeout(),
	})
	if err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "import: fetch source")
	}
	return path, cleanup, nil
}

func init() {
	importCmd.Flags().StringVar(&importGeoJSON, "geojson", "", "path or http(s)/ftp URL of a GeoJSON FeatureCollection")
	importCmd.Flags().StringVar(&importShp, "shp", "", "path to an ESRI shapefile (.shp), or http(s)/ftp URL of a zipped one")
	importCmd.Flags().StringVar(&importOverpass, "overpass", "", "bounding box minLat,minLon,maxLat,maxLon to fetch from Overpass")
	importCmd.MarkFlagsMutuallyExclusive("geojson", "shp", "overpass")
	rootCmd.AddCommand(importCmd)
}
