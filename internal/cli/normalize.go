package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidarfeatures/internal/normalize"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

func newNormalizeCmd(app *App) *cobra.Command {
	var (
		io       ioFlags
		cellSize float64
	)
	cmd := &cobra.Command{
		Use:   "normalize INPUT OUTPUT",
		Short: "Add normalized_height above the local ground",
		Long: "Normalize writes normalized_height, the height of every point above the\n" +
			"lowest point of its grid cell. A cell size of zero uses the global minimum.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			params := io.params()
			params["cell_size"] = cellSize
			ctx := cmd.Context()
			return app.track(ctx, "normalize", in, out, params, func() (*pointcloud.PointCloud, error) {
				pc, err := io.load(app, in)
				if err != nil {
					return nil, err
				}
				if err := normalize.Normalize(ctx, pc, cellSize, normalize.Options{Engine: app.engine()}); err != nil {
					return pc, err
				}
				if err := io.save(app, out, pc); err != nil {
					return pc, err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d normalized points to %s\n", pc.Len(), out)
				return pc, nil
			})
		},
	}
	f := cmd.Flags()
	f.Float64Var(&cellSize, "cell-size", 0, "ground cell side; 0 uses the global minimum")
	f.StringSliceVar(&io.attributes, "attributes", nil, "LAS dimensions to read, or all")
	f.StringVar(&io.plyFormat, "ply-format", "", "PLY encoding: ascii, binary_little_endian, binary_big_endian")
	return cmd
}
