// Package exitlog implements the per-PP VMExit ring buffer (spec.md
// §4.4): a fixed-capacity history appended to on every successful
// VMRUN, rendered through the debug channel on fault for post-mortem.
//
// The ring/writer shape is grounded on the teacher's
// internal/timeslice package (a fixed record type appended from a
// single recorder and drained in order); unlike timeslice this stays
// entirely in memory, since spec.md §4.4 only asks for a render-on-
// fault view, not a persisted trace.
package exitlog

import (
	"fmt"
	"sync"

	"github.com/tinyrange/svmcore/internal/debug"
	"github.com/tinyrange/svmcore/internal/hv/ids"
)

// Record is one VMExit: the 24-word layout spec.md §4.4 names.
type Record struct {
	ExitReason uint64
	ExitInfo1  uint64
	ExitInfo2  uint64
	InjectInfo uint64
	Gprs       [15]uint64
	Rsp        uint64
	Rip        uint64

	ActiveExt ids.ExtID
	ActiveVM  ids.VMID
	ActiveVPS ids.VPSID
}

// Reporter owns one ring per PP. Appends for a given PP are only ever
// issued by that PP (spec.md §5's single-writer-per-ring guarantee),
// so the per-ring slice itself needs no lock; the map of rings is
// guarded because rings are created lazily on first use from whatever
// PP happens to run first.
type Reporter struct {
	capacity int
	enabled  bool

	mu    sync.Mutex
	rings map[ids.PPID]*ring
}

type ring struct {
	entries []Record
	next    int
	count   int
}

// NewReporter creates a reporter with the given per-PP ring capacity.
// enabled gates whether Add actually records anything — spec.md §4.4
// says appends happen only in debug builds above a severity threshold;
// here that's a plain boolean the caller derives from its own build
// configuration.
func NewReporter(capacity int, enabled bool) *Reporter {
	return &Reporter{
		capacity: capacity,
		enabled:  enabled,
		rings:    make(map[ids.PPID]*ring),
	}
}

func (r *Reporter) ringFor(pp ids.PPID) *ring {
	r.mu.Lock()
	defer r.mu.Unlock()

	rg, ok := r.rings[pp]
	if !ok {
		rg = &ring{entries: make([]Record, r.capacity)}
		r.rings[pp] = rg
	}
	return rg
}

// Add appends rec to pp's ring, wrapping around when full. A no-op
// when the reporter is disabled.
func (r *Reporter) Add(pp ids.PPID, rec Record) {
	if !r.enabled || r.capacity == 0 {
		return
	}

	ring := r.ringFor(pp)
	ring.entries[ring.next] = rec
	ring.next = (ring.next + 1) % r.capacity
	if ring.count < r.capacity {
		ring.count++
	}
}

// Dump renders pp's ring in chronological order to the debug channel.
func (r *Reporter) Dump(pp ids.PPID) {
	ring := r.ringFor(pp)
	d := debug.WithSource(fmt.Sprintf("exitlog.pp%d", pp))

	start := ring.next - ring.count
	if start < 0 {
		start += r.capacity
	}
	for i := 0; i < ring.count; i++ {
		idx := (start + i) % r.capacity
		rec := ring.entries[idx]
		d.Writef("[%d] exit_reason=0x%x info1=0x%x info2=0x%x inject=0x%x rip=0x%x rsp=0x%x ext=%d vm=%d vps=%d",
			i, rec.ExitReason, rec.ExitInfo1, rec.ExitInfo2, rec.InjectInfo,
			rec.Rip, rec.Rsp, rec.ActiveExt, rec.ActiveVM, rec.ActiveVPS)
	}
}

// Records returns a snapshot of pp's ring in chronological order, for
// tests and tooling that want structured access rather than text.
func (r *Reporter) Records(pp ids.PPID) []Record {
	ring := r.ringFor(pp)

	start := ring.next - ring.count
	if start < 0 {
		start += r.capacity
	}
	out := make([]Record, ring.count)
	for i := 0; i < ring.count; i++ {
		out[i] = ring.entries[(start+i)%r.capacity]
	}
	return out
}
