// Package sdc bridges the FPGA core's virtual disks to image files on
// the SD card.
//
// The core reads and writes the SD card itself but only knows logical
// sector numbers within a disk image. The [Controller] keeps up to four
// images open (two floppies and two ACSI hard disks), translates each
// logical sector the core asks for into the physical card sector holding
// it, and delivers that address back over the link. Hard disk requests
// arrive as ACSI commands and are answered by an [acsi.Emulator].
//
// # Serialization
//
// The mounted volume, the drive slots and their link tables are shared
// between the request path (driven by core interrupts) and image
// management (open, eject, browse). Every operation touching them holds
// the controller's access serializer for its whole duration, including
// multi-sector ACSI reads.
//
// # Events
//
// Interrupt signals are coalesced. [Controller.Run] is the single
// consumer: each signal polls the core for one [Event] and handles it.
//
//	ctrl := sdc.New(bus, sdc.DefaultOptions())
//	if err := ctrl.Init(ctx); err != nil {
//	    return err
//	}
//	go ctrl.Run(ctx)
//
//	dispatcher := sysctrl.NewDispatcher(sysctrl.New(bus), ctrl, nil)
//	go dispatcher.Run(ctx, bus.IRQ())
package sdc
