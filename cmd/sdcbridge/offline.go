package main

import (
	"context"
	"os"

	"github.com/ardnew/sdcbridge/link/sim"
	"github.com/ardnew/sdcbridge/sdc"
)

// openOffline mounts a card image through an in-process core, so offline
// tools see the card exactly as the bridge does. No default images are
// opened.
func (a *app) openOffline(ctx context.Context, path string, mutate func(*sdc.Options)) (*sdc.Controller, func(), error) {
	card, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	opts := a.cfg.Options()
	opts.Defaults = [sdc.NumDrives]string{}
	if mutate != nil {
		mutate(&opts)
	}
	ctrl := sdc.New(sim.New(card, sim.Options{CoreID: 1}), opts)
	if err := ctrl.Mount(ctx); err != nil {
		card.Close()
		return nil, nil, err
	}
	return ctrl, func() {
		ctrl.Close()
		card.Close()
	}, nil
}
