package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/sdcbridge/link/fifo"
	"github.com/ardnew/sdcbridge/link/sim"
	"github.com/ardnew/sdcbridge/pkg"
	"github.com/ardnew/sdcbridge/sdc"
)

func newCoreCommand(a *app) *cobra.Command {
	var (
		fifoDir  string
		requests []string
	)
	cmd := &cobra.Command{
		Use:   "core card.img",
		Short: "Run a simulated core on the link pipes",
		Long: "Core answers the bridge on the link pipes as the FPGA core would,\n" +
			"reading the SD card from an image file. Requests given with\n" +
			"--request (drive:sector) are raised at startup.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("fifo-dir") {
				a.cfg.Link.FIFODir = fifoDir
			}
			card, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer card.Close()

			core := sim.New(card, sim.Options{CoreID: 1})
			for _, r := range requests {
				drive, sector, err := parseRequest(r)
				if err != nil {
					return err
				}
				core.RequestSector(int(drive), sector)
			}

			ctx, cancel := signalContext()
			defer cancel()
			err = fifo.Serve(ctx, a.cfg.Link.FIFODir, core)

			for _, d := range core.Deliveries() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s sector %d -> %d\n", sdc.Drive(d.Drive), d.Sector, d.Physical)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&fifoDir, "fifo-dir", "", "directory of the pipes shared with the bridge")
	cmd.Flags().StringArrayVar(&requests, "request", nil, "raise a sector request, e.g. a:10 (repeatable)")
	return cmd
}

// parseRequest parses "drive:sector".
func parseRequest(s string) (sdc.Drive, uint32, error) {
	name, num, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("request %q: want drive:sector: %w", s, pkg.ErrInvalidParameter)
	}
	drive, err := sdc.ParseDrive(name)
	if err != nil {
		return 0, 0, err
	}
	sector, err := strconv.ParseUint(num, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("request %q: %w", s, err)
	}
	return drive, uint32(sector), nil
}
