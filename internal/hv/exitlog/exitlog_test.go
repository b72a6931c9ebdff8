package exitlog

import (
	"testing"

	"github.com/tinyrange/svmcore/internal/hv/ids"
)

func TestAddAndRecordsOrder(t *testing.T) {
	r := NewReporter(2, true)
	pp := ids.PPID(0)

	r.Add(pp, Record{ExitReason: 1})
	r.Add(pp, Record{ExitReason: 2})
	r.Add(pp, Record{ExitReason: 3}) // wraps, evicting ExitReason 1

	recs := r.Records(pp)
	if len(recs) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(recs))
	}
	if recs[0].ExitReason != 2 || recs[1].ExitReason != 3 {
		t.Fatalf("Records = %+v, want [2 3] in order", recs)
	}
}

func TestDisabledReporterIsNoOp(t *testing.T) {
	r := NewReporter(4, false)
	pp := ids.PPID(0)
	r.Add(pp, Record{ExitReason: 1})
	if len(r.Records(pp)) != 0 {
		t.Fatal("disabled reporter recorded an entry")
	}
}

func TestZeroCapacityIsNoOp(t *testing.T) {
	r := NewReporter(0, true)
	pp := ids.PPID(0)
	r.Add(pp, Record{ExitReason: 1})
	if len(r.Records(pp)) != 0 {
		t.Fatal("zero-capacity reporter recorded an entry")
	}
}

func TestPerPPIsolation(t *testing.T) {
	r := NewReporter(4, true)
	r.Add(ids.PPID(0), Record{ExitReason: 0x400})
	r.Add(ids.PPID(1), Record{ExitReason: 0x500})

	if got := r.Records(ids.PPID(0)); len(got) != 1 || got[0].ExitReason != 0x400 {
		t.Fatalf("pp0 records = %+v", got)
	}
	if got := r.Records(ids.PPID(1)); len(got) != 1 || got[0].ExitReason != 0x500 {
		t.Fatalf("pp1 records = %+v", got)
	}
}
