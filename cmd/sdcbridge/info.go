package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ardnew/sdcbridge/fatfs"
)

func newInfoCommand(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info card.img",
		Short: "Show the volume layout of a card image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := fatfs.NewFileDevice(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			fsys, err := fatfs.Mount(dev)
			if err != nil {
				return err
			}
			geo := fsys.Geometry()
			clusters := uint64(geo.Entries - 2)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "card:       %s (%s)\n", args[0], humanize.IBytes(uint64(dev.SectorCount())*fatfs.SectorSize))
			fmt.Fprintf(out, "type:       %s\n", fsys.Type())
			fmt.Fprintf(out, "cluster:    %d sectors (%s)\n", geo.ClusterSize, humanize.IBytes(uint64(geo.ClusterBytes())))
			fmt.Fprintf(out, "clusters:   %s\n", humanize.Comma(int64(clusters)))
			fmt.Fprintf(out, "data start: sector %d\n", geo.DataStart)
			fmt.Fprintf(out, "capacity:   %s\n", humanize.IBytes(clusters*uint64(geo.ClusterBytes())))
			return nil
		},
	}
}
