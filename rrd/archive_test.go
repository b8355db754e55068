package rrd

import (
	"math"
	"testing"

	"github.com/grailbio/rrd/backend/membackend"
	"github.com/grailbio/rrd/internal/alloc"
	"github.com/grailbio/rrd/rrdpb"
	"github.com/grailbio/testutil/expect"
)

// newTestArchive binds a single fresh archive, with dsCount datasources
// and the given rows, over its own detached backend.
func newTestArchive(t *testing.T, def rrdpb.ArcDef, dsCount int64) archive {
	t.Helper()
	be := membackend.New(archiveWidth(dsCount, def.Rows))
	var a alloc.Allocator
	ar := bindArchive(be, &a, dsCount, def.Rows)
	expect.NoError(t, ar.initialize(def, dsCount))
	return ar
}

// foldRun is a small helper that folds n consecutive one-PDP-each runs
// (so every call to fold carries count=1), mirroring how
// Database.Update hands archive.fold one run per distinct PDP value.
func foldRun(t *testing.T, ar archive, dsIndex int64, step int64, firstEnd int64, values ...float64) {
	t.Helper()
	for i, v := range values {
		run := pdpRun{value: v, count: 1, firstEnd: firstEnd + int64(i)*step}
		expect.NoError(t, ar.fold(dsIndex, run, step))
	}
}

// The ring buffer never changes length across folds: rows stays fixed
// for the archive's lifetime, regardless of how many rows have been
// written (including wraparound past the end of the ring).
func TestArchiveRingLengthIsInvariant(t *testing.T) {
	def := rrdpb.ArcDef{Cf: rrdpb.Average, Xff: 0.5, Steps: 1, Rows: 4}
	ar := newTestArchive(t, def, 1)

	foldRun(t, ar, 0, 10, 10, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	rows, err := ar.rows.Get()
	expect.NoError(t, err)
	expect.EQ(t, int64(4), rows)

	var got []float64
	for r := int64(0); r < rows; r++ {
		v, err := ar.perDs[0].robin.GetAt(r)
		expect.NoError(t, err)
		got = append(got, v)
	}
	expect.EQ(t, 4, len(got))
}

// The xff rule depends only on the ratio of nan steps to total steps
// within a consolidation window, compared against xff: crossing the
// threshold flips the emitted row between a real value and NaN.
func TestArchiveXffRuleThreshold(t *testing.T) {
	for _, tc := range []struct {
		name     string
		xff      float64
		steps    int64
		nanCount int64 // how many of the window's PDPs are NaN
		wantNaN  bool
	}{
		{"below threshold stays valid", 0.5, 4, 1, false},
		{"at threshold is NaN", 0.5, 4, 2, true},
		{"above threshold is NaN", 0.5, 4, 3, true},
		{"xff zero any nan is NaN", 0, 4, 1, true},
		{"xff near one tolerates all but one", 0.99, 4, 3, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			def := rrdpb.ArcDef{Cf: rrdpb.Average, Xff: tc.xff, Steps: tc.steps, Rows: 3}
			ar := newTestArchive(t, def, 1)

			var values []float64
			for i := int64(0); i < tc.steps; i++ {
				if i < tc.nanCount {
					values = append(values, math.NaN())
				} else {
					values = append(values, 10)
				}
			}
			foldRun(t, ar, 0, 300, 300, values...)

			v, err := ar.perDs[0].robin.GetAt(0)
			expect.NoError(t, err)
			expect.EQ(t, tc.wantNaN, math.IsNaN(v))
		})
	}
}

// Each consolidation function combines a window's PDPs the way its name
// says, independent of the xff bookkeeping exercised above.
func TestArchiveConsolidationFunctions(t *testing.T) {
	for _, tc := range []struct {
		cf    rrdpb.ConsolFun
		want  float64
		input []float64
	}{
		{rrdpb.Average, 20, []float64{10, 20, 30}},
		{rrdpb.Min, 10, []float64{30, 10, 20}},
		{rrdpb.Max, 30, []float64{10, 30, 20}},
		{rrdpb.First, 10, []float64{10, 20, 30}},
		{rrdpb.Last, 30, []float64{10, 20, 30}},
		{rrdpb.Total, 60, []float64{10, 20, 30}},
	} {
		t.Run(tc.cf.String(), func(t *testing.T) {
			def := rrdpb.ArcDef{Cf: tc.cf, Xff: 0.5, Steps: int64(len(tc.input)), Rows: 3}
			ar := newTestArchive(t, def, 1)
			foldRun(t, ar, 0, 300, 300, tc.input...)

			v, err := ar.perDs[0].robin.GetAt(0)
			expect.NoError(t, err)
			expect.EQ(t, tc.want, v)
		})
	}
}

// A run whose windows don't land on the archive's own step boundary
// (steps>1) must only emit a row on the window that actually closes the
// consolidation window, not on every fold.
func TestArchiveFoldOnlyEmitsOnWindowBoundary(t *testing.T) {
	def := rrdpb.ArcDef{Cf: rrdpb.Average, Xff: 0.5, Steps: 3, Rows: 5}
	ar := newTestArchive(t, def, 1)

	// Two PDPs into a 3-step window: nothing should have been emitted yet.
	foldRun(t, ar, 0, 100, 100, 1, 2)
	v, err := ar.perDs[0].robin.GetAt(0)
	expect.NoError(t, err)
	expect.EQ(t, true, math.IsNaN(v))

	// The third PDP closes the window: (1+2+3)/3 = 2.
	foldRun(t, ar, 0, 100, 300, 3)
	v, err = ar.perDs[0].robin.GetAt(0)
	expect.NoError(t, err)
	expect.EQ(t, 2.0, v)
}

// coverage's start/end times are derived purely from lastUpdateTime and
// arcStep, never persisted, and obey end_time = start_time+(rows-1)*arcStep.
func TestArchiveCoverageDerivation(t *testing.T) {
	def := rrdpb.ArcDef{Cf: rrdpb.Average, Xff: 0.5, Steps: 2, Rows: 5}
	ar := newTestArchive(t, def, 1)

	startTime, endTime, arcStep, err := ar.coverage(1009, 10)
	expect.NoError(t, err)
	expect.EQ(t, int64(20), arcStep)
	expect.EQ(t, int64(1000), endTime)
	expect.EQ(t, endTime-startTime, (def.Rows-1)*arcStep)
}
