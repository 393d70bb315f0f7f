package prof

// Profile names a snapshot profile.
type Profile string

// Snapshot profiles written when a session stops.
const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// Options selects what a session records. Empty paths disable output.
type Options struct {
	CPU    string // CPU profile streamed for the whole session
	Heap   string // Heap snapshot written at stop
	Mutex  string // Mutex contention profile written at stop
	Block  string // Blocking profile written at stop
	Listen string // Address serving /debug/pprof/ during the session
}

// Enabled reports whether any output is selected.
func (o Options) Enabled() bool {
	return o != Options{}
}

// snapshots returns the snapshot profiles to write at stop.
func (o Options) snapshots() map[Profile]string {
	out := make(map[Profile]string)
	if o.Heap != "" {
		out[ProfileHeap] = o.Heap
	}
	if o.Mutex != "" {
		out[ProfileMutex] = o.Mutex
	}
	if o.Block != "" {
		out[ProfileBlock] = o.Block
	}
	return out
}
