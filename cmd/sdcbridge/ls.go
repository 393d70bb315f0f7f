package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newLsCommand(a *app) *cobra.Command {
	var bytes bool
	cmd := &cobra.Command{
		Use:   "ls card.img [dir]",
		Short: "List images in a card directory",
		Long: "Ls lists a directory of a card image the way the core's file\n" +
			"selector shows it: directories first, then image files, each\n" +
			"sorted by name ignoring case.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := a.openOffline(context.Background(), args[0], nil)
			if err != nil {
				return err
			}
			defer done()

			dir := a.cfg.Card.Mountpoint
			if len(args) > 1 {
				dir = args[1]
			}
			list, err := ctrl.Chdir(dir)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", ctrl.Cwd())
			for _, e := range list {
				size := "<DIR>"
				switch {
				case e.Dir:
				case bytes:
					size = fmt.Sprintf("%d", e.Size)
				default:
					size = humanize.IBytes(uint64(e.Size))
				}
				fmt.Fprintf(w, "%s\t  %s\t\n", size, e.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&bytes, "bytes", false, "print sizes in bytes")
	return cmd
}
