//go:build profile

package prof

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ardnew/sdcbridge/pkg"
)

func TestSession(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Mutex: filepath.Join(dir, "mutex.prof"),
	}
	stop, err := Start(opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mu.Lock()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if _, err := Start(opts); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop() error = %v", err)
	}
	for _, path := range []string{opts.CPU, opts.Heap, opts.Mutex} {
		if st, err := os.Stat(path); err != nil || st.Size() == 0 {
			t.Errorf("%s not written: %v", path, err)
		}
	}
	if err := stop(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("second stop() error = %v, want ErrNotRunning", err)
	}
}

func TestStartBadPath(t *testing.T) {
	if _, err := Start(Options{CPU: "/nonexistent/dir/cpu.prof"}); err == nil {
		t.Error("Start() with bad path succeeded")
	}
	stop, err := Start(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := stop(); err != nil {
		t.Error(err)
	}
}
