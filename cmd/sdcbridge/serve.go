package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/link/fifo"
	"github.com/ardnew/sdcbridge/link/sim"
	"github.com/ardnew/sdcbridge/pkg"
	"github.com/ardnew/sdcbridge/pkg/prof"
	"github.com/ardnew/sdcbridge/sdc"
	"github.com/ardnew/sdcbridge/state"
	"github.com/ardnew/sdcbridge/sysctrl"
)

// transport is a bus that can signal core interrupts.
type transport interface {
	link.Bus
	link.Interrupter
}

func newServeCommand(a *app) *cobra.Command {
	var (
		fifoDir string
		simCard string
		noState bool
		profile prof.Options
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve core storage requests",
		Long: "Serve connects to the core, mounts the SD card, opens the default\n" +
			"images and answers sector and ACSI requests until interrupted.\n" +
			"With --sim the core is simulated in-process on a card image.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("fifo-dir") {
				a.cfg.Link.FIFODir = fifoDir
			}
			if noState {
				a.cfg.State = ""
			}
			stop, err := prof.Start(profile)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return errors.Join(a.serve(ctx, simCard), stop())
		},
	}
	cmd.Flags().StringVar(&fifoDir, "fifo-dir", "", "directory of the pipes shared with the core")
	cmd.Flags().StringVar(&simCard, "sim", "", "simulate the core on this card image")
	cmd.Flags().BoolVar(&noState, "no-state", false, "do not restore or record the session")
	cmd.Flags().StringVar(&profile.CPU, "cpuprofile", "", "write a CPU profile to this file")
	cmd.Flags().StringVar(&profile.Heap, "memprofile", "", "write a heap profile to this file on exit")
	cmd.Flags().StringVar(&profile.Mutex, "mutexprofile", "", "write a mutex contention profile to this file on exit")
	cmd.Flags().StringVar(&profile.Listen, "pprof", "", "serve /debug/pprof/ on this address")
	return cmd
}

func (a *app) serve(ctx context.Context, simCard string) error {
	var bus transport
	if simCard != "" {
		card, err := os.Open(simCard)
		if err != nil {
			return err
		}
		defer card.Close()
		bus = sim.New(card, sim.Options{CoreID: 1})
		pkg.LogInfo(component, "simulated core", "card", simCard)
	} else {
		fb := fifo.New(a.cfg.Link.FIFODir, fifo.Options{Timeout: a.cfg.LinkTimeout()})
		if err := fb.Open(ctx); err != nil {
			return fmt.Errorf("opening link: %w", err)
		}
		defer fb.Close()
		bus = fb
	}

	sys := sysctrl.New(bus)
	if id, err := sys.Status(); err != nil {
		return fmt.Errorf("core status: %w", err)
	} else if id != 1 {
		pkg.LogWarn(component, "unexpected core", "id", id, "name", sysctrl.CoreName(id))
	}

	opts := a.cfg.Options()
	var store *state.Store
	if a.cfg.State != "" {
		var err error
		if store, err = state.Open(a.cfg.State); err != nil {
			return fmt.Errorf("session: %w", err)
		}
		opts.OnImageChange = store.Track()
		opts.OnChdir = store.TrackCwd()
	}

	ctrl := sdc.New(bus, opts)
	defer ctrl.Close()
	if err := ctrl.Init(ctx); err != nil {
		return err
	}
	if store != nil {
		store.Restore(ctrl)
	}
	for d := sdc.Drive(0); d < sdc.NumDrives; d++ {
		if info, err := ctrl.Slot(d); err == nil && info.Open() {
			pkg.LogInfo(component, "drive ready", "drive", d, "image", info.Path, "linked", info.Linked)
		}
	}

	dispatcher := sysctrl.NewDispatcher(sys, ctrl, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- dispatcher.Run(ctx, bus.IRQ())
	}()
	go func() {
		defer wg.Done()
		errs <- ctrl.Run(ctx)
	}()
	pkg.LogInfo(component, "bridge ready", "mountpoint", opts.Mountpoint)

	wg.Wait()
	close(errs)
	var err error
	for e := range errs {
		err = errors.Join(err, e)
	}
	return err
}
