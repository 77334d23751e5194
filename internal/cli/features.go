package cli

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/features"
	"github.com/banshee-data/lidarfeatures/internal/features/extractors"
	"github.com/banshee-data/lidarfeatures/internal/formats"
	"github.com/banshee-data/lidarfeatures/internal/grid"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

type featuresOptions struct {
	io        ioFlags
	names     []string
	volume    string
	targets   string
	gridSide  float64
	chunkSize int
	kwargs    []string
	list      bool
}

func newFeaturesCmd(app *App) *cobra.Command {
	opts := &featuresOptions{}
	cmd := &cobra.Command{
		Use:   "features ENVIRONMENT OUTPUT",
		Short: "Compute neighborhood features for a set of targets",
		Long: "Compute the named features for every target point from the environment\n" +
			"points inside its volume. Targets default to the environment itself; use\n" +
			"--targets for a separate cloud or --grid for cell centres.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := extractors.NewDefaultCatalog()
			if opts.list {
				for _, name := range catalog.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			if len(args) != 2 {
				return errs.New(errs.InvalidInput, "features needs ENVIRONMENT and OUTPUT")
			}
			return runFeatures(cmd, app, opts, catalog, args[0], args[1])
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.names, "features", "f", nil, "features to compute (comma separated)")
	f.StringVar(&opts.volume, "volume", "", "neighborhood volume as type:size, e.g. sphere:0.5")
	f.StringVar(&opts.targets, "targets", "", "target cloud (default: the environment)")
	f.Float64Var(&opts.gridSide, "grid", 0, "use cell centres of a grid with this side as targets")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "targets per chunk (default from config)")
	f.StringArrayVarP(&opts.kwargs, "param", "p", nil, "extractor parameter key=value, repeatable")
	f.BoolVar(&opts.list, "list", false, "list the available features and exit")
	f.StringSliceVar(&opts.io.attributes, "attributes", nil, "LAS dimensions to read, or all")
	f.StringVar(&opts.io.plyFormat, "ply-format", "", "PLY encoding: ascii, binary_little_endian, binary_big_endian")
	cmd.MarkFlagsMutuallyExclusive("targets", "grid")
	return cmd
}

func runFeatures(cmd *cobra.Command, app *App, opts *featuresOptions, catalog *features.Catalog, envPath, outPath string) error {
	if len(opts.names) == 0 {
		return errs.New(errs.InvalidInput, "--features is required")
	}
	if opts.volume == "" {
		return errs.New(errs.InvalidInput, "--volume is required")
	}
	vol, err := volume.Parse(opts.volume)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("grid") {
		if err := positive("grid", opts.gridSide); err != nil {
			return err
		}
	}
	chunkSize := app.Config.GetChunkSize()
	if cmd.Flags().Changed("chunk-size") {
		if opts.chunkSize <= 0 {
			return errs.New(errs.InvalidInput, "--chunk-size must be positive, got %d", opts.chunkSize)
		}
		chunkSize = opts.chunkSize
	}
	extra, err := parseKwargs(opts.kwargs)
	if err != nil {
		return err
	}
	kwargs := map[string]any{"layer_thickness": app.Config.GetLayerThickness()}
	maps.Copy(kwargs, extra)

	params := opts.io.params()
	params["features"] = opts.names
	params["volume"] = opts.volume
	params["chunk_size"] = chunkSize
	params["kwargs"] = kwargs
	if opts.targets != "" {
		params["targets"] = opts.targets
	}
	if opts.gridSide > 0 {
		params["grid"] = opts.gridSide
	}

	ctx := cmd.Context()
	return app.track(ctx, "features", envPath, outPath, params, func() (*pointcloud.PointCloud, error) {
		env, err := opts.io.load(app, envPath)
		if err != nil {
			return nil, err
		}
		targets := env
		switch {
		case opts.targets != "":
			if targets, err = formats.Load(app.FS, opts.targets, formats.LoadOptions{}); err != nil {
				return nil, err
			}
		case opts.gridSide > 0:
			if targets, err = grid.Targets(env, opts.gridSide); err != nil {
				return nil, err
			}
		}

		stream, err := app.engine().Compute(ctx, env, targets, vol)
		if err != nil {
			return targets, err
		}
		err = features.Compute(ctx, env, stream, targets, opts.names, vol, features.Options{
			Catalog:   catalog,
			ChunkSize: chunkSize,
			Verbose:   app.Verbose,
			Kwargs:    kwargs,
			Observer:  app.featureObserver(),
		})
		if err != nil {
			return targets, err
		}
		if err := opts.io.save(app, outPath, targets); err != nil {
			return targets, err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d targets with %d features to %s\n", targets.Len(), len(opts.names), outPath)
		return targets, nil
	})
}
