//go:build !profile

package prof

import (
	"fmt"

	"github.com/ardnew/sdcbridge/pkg"
)

// Start returns a no-op session for empty options. Any requested output
// fails with pkg.ErrNotSupported: rebuild with -tags profile.
func Start(opts Options) (stop func() error, err error) {
	if opts.Enabled() {
		return nil, fmt.Errorf("profiling (build with -tags profile): %w", pkg.ErrNotSupported)
	}
	return func() error { return nil }, nil
}
