package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidarfeatures/internal/grid"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

func newGridCmd(app *App) *cobra.Command {
	var (
		io   ioFlags
		side float64
	)
	cmd := &cobra.Command{
		Use:   "grid INPUT OUTPUT",
		Short: "Write the cell centres of a regular grid over a cloud",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := positive("side", side); err != nil {
				return err
			}
			in, out := args[0], args[1]
			params := io.params()
			params["side"] = side
			return app.track(cmd.Context(), "grid", in, out, params, func() (*pointcloud.PointCloud, error) {
				env, err := io.load(app, in)
				if err != nil {
					return nil, err
				}
				targets, err := grid.Targets(env, side)
				if err != nil {
					return nil, err
				}
				if err := io.save(app, out, targets); err != nil {
					return targets, err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d cell centres to %s\n", targets.Len(), out)
				return targets, nil
			})
		},
	}
	f := cmd.Flags()
	f.Float64Var(&side, "side", 1, "cell side")
	f.StringSliceVar(&io.attributes, "attributes", nil, "LAS dimensions to read, or all")
	f.StringVar(&io.plyFormat, "ply-format", "", "PLY encoding: ascii, binary_little_endian, binary_big_endian")
	return cmd
}
