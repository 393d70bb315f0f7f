// Package prof profiles a running bridge.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/sdcbridge
//
// Without the tag [Start] accepts an empty [Options] and rejects any
// other with pkg.ErrNotSupported, so callers need no build tags of their
// own.
//
// A session covers the lifetime of the bridge:
//
//	stop, err := prof.Start(prof.Options{CPU: "cpu.prof", Mutex: true})
//	if err != nil {
//	    return err
//	}
//	defer stop()
//
// Mutex profiling is the interesting one for the bridge: it shows how
// long request handling waits on image management for the access
// serializer.
package prof
