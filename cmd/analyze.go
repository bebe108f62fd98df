package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/catchment"
	"github.com/sells-group/catchment/internal/export"
	"github.com/sells-group/catchment/internal/geo"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute the walking catchment of a point",
	Long:  "Fetches the walk network around a point, computes the area reachable within the time budget and the points of interest inside it, and writes the result in the chosen format.",
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.Float64("lat", 0, "origin latitude (required)")
	f.Float64("lon", 0, "origin longitude (required)")
	f.Float64("minutes", 0, "walking time budget in minutes (default from config)")
	f.Float64("speed", 0, "walking speed in km/h (default from config)")
	f.String("format", string(export.FormatGeoJSON), "output format: geojson, json, yaml, xlsx, shapefile")
	f.StringP("out", "o", "-", "output file, or directory for shapefile; - writes to stdout")
	_ = analyzeCmd.MarkFlagRequired("lat")
	_ = analyzeCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate("analyze"); err != nil {
		return err
	}

	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	minutes, _ := cmd.Flags().GetFloat64("minutes")
	speed, _ := cmd.Flags().GetFloat64("speed")
	formatName, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if format == export.FormatShapefile && out == "-" {
		return eris.New("analyze: shapefile output needs --out <directory>")
	}

	env, err := initApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.Analyzer.Analyze(ctx, catchment.Query{
		Origin:   geo.Point{Lat: lat, Lon: lon},
		Minutes:  minutes,
		SpeedKPH: speed,
	})
	if err != nil {
		return err
	}

	zap.L().Info("catchment computed",
		zap.String("id", res.ID),
		zap.Float64("area_km2", res.Stats.AreaKM2),
		zap.Float64("street_length_km", res.Stats.StreetLengthKM),
		zap.Int("pois", res.Stats.POICount),
	)

	return writeResult(cmd.OutOrStdout(), res, format, out)
}

// writeResult writes res to out ("-" for w) in the given format.
func writeResult(w io.Writer, res *catchment.Result, format export.Format, out string) error {
	if format == export.FormatShapefile {
		paths, err := export.WriteShapefiles(out, "catchment_"+shortID(res.ID), res)
		if err != nil {
			return err
		}
		zap.L().Info("shapefiles written", zap.Strings("files", paths))
		return nil
	}

	if out == "-" {
		return export.Write(w, res, format)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return eris.Wrapf(err, "analyze: create directory for %s", out)
	}
	f, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "analyze: create %s", out)
	}
	if err := export.Write(f, res, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "analyze: close %s", out)
	}
	zap.L().Info("result written", zap.String("file", out), zap.String("format", string(format)))
	return nil
}

func shortID(id string) string {
	id, _, _ = strings.Cut(id, "-")
	return id
}
