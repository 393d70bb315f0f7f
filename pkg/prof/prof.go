//go:build profile

package prof

import (
	"errors"
	"net"
	"net/http"
	_ "net/http/pprof" // Registers /debug/pprof/ on the default mux
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/sdcbridge/pkg"
)

var (
	sessionMutex sync.Mutex
	active       bool
)

// Start begins a profiling session. The returned stop function ends it,
// writes the snapshot profiles and reports the first error. Only one
// session may be active.
func Start(opts Options) (stop func() error, err error) {
	sessionMutex.Lock()
	defer sessionMutex.Unlock()
	if active {
		return nil, pkg.ErrAlreadyRunning
	}

	var cpu *os.File
	if opts.CPU != "" {
		if cpu, err = os.Create(opts.CPU); err != nil {
			return nil, err
		}
		if err = pprof.StartCPUProfile(cpu); err != nil {
			cpu.Close()
			return nil, err
		}
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}

	var server *http.Server
	if opts.Listen != "" {
		ln, err := net.Listen("tcp", opts.Listen)
		if err != nil {
			if cpu != nil {
				pprof.StopCPUProfile()
				cpu.Close()
			}
			return nil, err
		}
		server = &http.Server{Handler: http.DefaultServeMux}
		go server.Serve(ln)
		pkg.LogInfo(pkg.ComponentCLI, "pprof listening", "addr", ln.Addr().String())
	}

	active = true
	return func() error {
		sessionMutex.Lock()
		defer sessionMutex.Unlock()
		if !active {
			return pkg.ErrNotRunning
		}
		active = false

		var errs []error
		if cpu != nil {
			pprof.StopCPUProfile()
			errs = append(errs, cpu.Close())
		}
		for p, path := range opts.snapshots() {
			errs = append(errs, write(p, path))
		}
		if server != nil {
			errs = append(errs, server.Close())
		}
		runtime.SetMutexProfileFraction(0)
		runtime.SetBlockProfileRate(0)
		return errors.Join(errs...)
	}, nil
}

func write(p Profile, path string) error {
	prof := pprof.Lookup(string(p))
	if prof == nil {
		return pkg.ErrInvalidParameter
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := prof.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
