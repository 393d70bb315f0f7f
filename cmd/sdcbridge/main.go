// Command sdcbridge runs the SD card sector bridge for the MiSTeryNano
// FPGA core and offers offline tools for card images.
//
// Usage:
//
//	sdcbridge serve [--fifo-dir dir | --sim card.img]
//	sdcbridge core [--fifo-dir dir] card.img
//	sdcbridge ls card.img [dir]
//	sdcbridge translate card.img image sector...
//	sdcbridge info card.img
//
// Configuration is read from --config or $SDCBRIDGE_CONFIG; flags
// override file values.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ardnew/sdcbridge/config"
	"github.com/ardnew/sdcbridge/pkg"
)

const component = pkg.ComponentCLI

// app holds the configuration shared by all subcommands.
type app struct {
	cfg *config.Config

	configPath    string
	verbose       bool
	jsonLog       bool
	mountpoint    string
	extension     string
	linkTableSize int
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		pkg.LogError(component, "command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sdcbridge",
		Short:         "SD card sector bridge for the MiSTeryNano core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "configuration file (default $"+config.EnvConfig+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&a.jsonLog, "json", false, "use JSON log format")
	flags.StringVar(&a.mountpoint, "mountpoint", "", "display prefix of the card volume")
	flags.StringVar(&a.extension, "ext", "", "image extension shown in listings")
	flags.IntVar(&a.linkTableSize, "link-table-size", 0, "initial link table size in items")

	root.AddCommand(
		newServeCommand(a),
		newCoreCommand(a),
		newLsCommand(a),
		newTranslateCommand(a),
		newInfoCommand(a),
	)
	return root
}

// load reads the configuration and applies flag overrides.
func (a *app) load(flags *pflag.FlagSet) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flags.Changed("mountpoint") {
		a.cfg.Card.Mountpoint = a.mountpoint
	}
	if flags.Changed("ext") {
		a.cfg.Card.Extension = a.extension
	}
	if flags.Changed("link-table-size") {
		a.cfg.Card.LinkTableSize = a.linkTableSize
	}
	if a.verbose {
		a.cfg.Log.Level = "debug"
	}
	if a.jsonLog {
		a.cfg.Log.Format = "json"
	}

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return a.cfg.ApplyLogging()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			pkg.LogInfo(component, "shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
