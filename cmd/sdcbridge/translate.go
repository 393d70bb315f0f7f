package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ardnew/sdcbridge/sdc"
)

func newTranslateCommand(a *app) *cobra.Command {
	var chain bool
	cmd := &cobra.Command{
		Use:   "translate card.img image sector...",
		Short: "Translate image sectors to card sectors",
		Long: "Translate opens an image on a card image and prints the physical\n" +
			"card sector holding each logical image sector. The image path is\n" +
			"relative to the volume root or a display path under the mountpoint.",
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sectors := make([]uint32, 0, len(args)-2)
			for _, s := range args[2:] {
				n, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					return fmt.Errorf("sector %q: %w", s, err)
				}
				sectors = append(sectors, uint32(n))
			}

			ctrl, done, err := a.openOffline(context.Background(), args[0], func(o *sdc.Options) {
				if chain {
					o.Allocator = sdc.HeapAllocator{Limit: 1}
				}
			})
			if err != nil {
				return err
			}
			defer done()

			if err := ctrl.OpenImagePath(sdc.DriveACSI0, args[1]); err != nil {
				return err
			}
			info, err := ctrl.Slot(sdc.DriveACSI0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, link table %v)\n", info.Path, info.Size, info.Linked)
			for _, s := range sectors {
				phys, err := ctrl.Translate(sdc.DriveACSI0, s)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d\n", s, phys)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&chain, "chain", false, "walk the cluster chain instead of using a link table")
	return cmd
}
