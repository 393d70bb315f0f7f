// Package pkg provides shared utilities for the sdcbridge storage bridge.
//
// This package contains common functionality used across the sector
// translation core, the ACSI emulator, and the link transports, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for bridge and protocol failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with bridge-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentSDC, "image opened", "drive", 0)
//
// # Errors
//
// Common failures are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrNoImage) {
//	    // No image inserted in the requested drive slot
//	}
package pkg
