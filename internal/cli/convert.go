package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidarfeatures/internal/formats"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

func newConvertCmd(app *App) *cobra.Command {
	var (
		io    ioFlags
		asCSV bool
	)
	cmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT",
		Short: "Convert a LAS or PLY cloud to PLY, LAS or CSV",
		Long: "Convert reads INPUT and writes OUTPUT in the format named by its extension.\n" +
			"With --csv the output extension is replaced by .csv.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			if asCSV {
				out = strings.TrimSuffix(out, filepath.Ext(out)) + "." + formats.CSV
			}
			params := io.params()
			params["csv"] = asCSV
			return app.track(cmd.Context(), "convert", in, out, params, func() (*pointcloud.PointCloud, error) {
				pc, err := io.load(app, in)
				if err != nil {
					return nil, err
				}
				if err := io.save(app, out, pc); err != nil {
					return pc, err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d points to %s\n", pc.Len(), out)
				return pc, nil
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&io.attributes, "attributes", nil, "LAS dimensions to read, or all")
	f.StringVar(&io.plyFormat, "ply-format", "", "PLY encoding: ascii, binary_little_endian, binary_big_endian")
	f.BoolVar(&asCSV, "csv", false, "write CSV instead of the output extension's format")
	return cmd
}
