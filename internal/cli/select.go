package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/polygon"
)

func newSelectCmd(app *App) *cobra.Command {
	var (
		io     ioFlags
		source string
		mask   string
	)
	cmd := &cobra.Command{
		Use:   "select INPUT OUTPUT",
		Short: "Keep the points strictly inside a polygon",
		Long: "Select keeps the points whose (x, y) lie strictly inside the polygon given\n" +
			"by --polygon: a WKT string, a WKT file or an ESRI shapefile. With --mask the\n" +
			"cloud is kept whole and a 0/1 attribute of that name marks the inside points.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return errs.New(errs.InvalidInput, "--polygon is required")
			}
			area, err := polygon.Load(app.FS, source)
			if err != nil {
				return err
			}
			in, out := args[0], args[1]
			params := io.params()
			params["polygon"] = source
			if mask != "" {
				params["mask"] = mask
			}
			return app.track(cmd.Context(), "select", in, out, params, func() (*pointcloud.PointCloud, error) {
				pc, err := io.load(app, in)
				if err != nil {
					return nil, err
				}
				if mask != "" {
					err = addMask(pc, area, mask)
				} else {
					pc, err = area.Select(pc)
				}
				if err != nil {
					return pc, err
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
	f.StringVar(&source, "polygon", "", "WKT string, WKT file or .shp file")
	f.StringVar(&mask, "mask", "", "write a 0/1 attribute instead of dropping points")
	f.StringSliceVar(&io.attributes, "attributes", nil, "LAS dimensions to read, or all")
	f.StringVar(&io.plyFormat, "ply-format", "", "PLY encoding: ascii, binary_little_endian, binary_big_endian")
	return cmd
}

func addMask(pc *pointcloud.PointCloud, area *polygon.Area, name string) error {
	inside, err := area.Mask(pc)
	if err != nil {
		return err
	}
	col := make([]float64, len(inside))
	n := 0
	for i, in := range inside {
		if in {
			col[i] = 1
			n++
		}
	}
	if err := pc.Add(name, pointcloud.Uint8, col); err != nil {
		return err
	}
	pc.AddProvenance(polygon.Module, area.WKT(), name, n)
	return nil
}
