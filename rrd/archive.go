package rrd

import (
	"math"

	"github.com/grailbio/rrd/backend"
	"github.com/grailbio/rrd/internal/alloc"
	"github.com/grailbio/rrd/internal/cell"
	"github.com/grailbio/rrd/rrdpb"
)

const (
	cfWidth = 8
)

// dsArchiveState is one datasource's consolidation bookkeeping and ring
// buffer within a single archive.
type dsArchiveState struct {
	accumulator cell.Float64
	nanSteps    cell.Int64
	robin       cell.FloatArray
	writePtr    cell.Int64
}

// archive is one round-robin archive: a consolidation function applied
// over a fixed number of primary data points, with one ring buffer per
// datasource holding the most recent rows. Per spec.md §6, an archive's
// start-time/end-time are not persisted; they're derived from the
// database's header.lastUpdateTime and the archive's own step/rows, so
// they always stay consistent with spec.md §3's
// end_time = start_time + (rows-1)*arcStep invariant by construction.
type archive struct {
	cf    cell.String
	xff   cell.Float64
	steps cell.Int64
	rows  cell.Int64

	// perDs is indexed by datasource index, same order as the database's
	// datasource list.
	perDs []dsArchiveState
}

// archiveWidth returns the on-disk size of one archive block for a
// database with dsCount datasources and the given rows.
//
// The layout has two datasource-indexed phases rather than one
// interleaved per-datasource block: spec.md §6 describes "per-datasource
// archive state (accumulator, nan-steps)" and "a robin array... plus a
// write pointer, per datasource" as two separate clauses, which reads
// most naturally as two contiguous phases (all accumulators and
// nan-steps first, then all robins and write pointers), not as a single
// interleaved per-datasource record.
func archiveWidth(dsCount, rows int64) int64 {
	header := cfWidth + cell.Float64Width /*xff*/ + cell.Int64Width /*steps*/ + cell.Int64Width /*rows*/
	state := dsCount * (cell.Float64Width /*accumulator*/ + cell.Int64Width /*nanSteps*/)
	ring := dsCount * (rows*cell.Float64Width /*robin*/ + cell.Int64Width /*writePtr*/)
	return header + state + ring
}

// bindArchive binds an archive at the allocator's current position for
// a database with dsCount datasources.
func bindArchive(be backend.Backend, a *alloc.Allocator, dsCount, rows int64) archive {
	ar := archive{
		cf:    cell.BindString(be, a.Allocate(cfWidth), cfWidth),
		xff:   cell.BindFloat64(be, a.Allocate(cell.Float64Width)),
		steps: cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		rows:  cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		perDs: make([]dsArchiveState, dsCount),
	}
	for i := int64(0); i < dsCount; i++ {
		ar.perDs[i].accumulator = cell.BindFloat64(be, a.Allocate(cell.Float64Width))
		ar.perDs[i].nanSteps = cell.BindInt64(be, a.Allocate(cell.Int64Width))
	}
	for i := int64(0); i < dsCount; i++ {
		ar.perDs[i].robin = cell.BindFloatArray(be, a.Allocate(rows*cell.Float64Width), rows)
		ar.perDs[i].writePtr = cell.BindInt64(be, a.Allocate(cell.Int64Width))
	}
	return ar
}

// initialize writes an archive's initial state during Create.
func (a archive) initialize(def rrdpb.ArcDef, dsCount int64) error {
	if err := a.cf.Set(def.Cf.String()); err != nil {
		return err
	}
	if err := a.xff.Set(def.Xff); err != nil {
		return err
	}
	if err := a.steps.Set(def.Steps); err != nil {
		return err
	}
	if err := a.rows.Set(def.Rows); err != nil {
		return err
	}
	for i := int64(0); i < dsCount; i++ {
		if err := a.resetAccumulator(def.Cf, i); err != nil {
			return err
		}
		if err := a.perDs[i].writePtr.Set(0); err != nil {
			return err
		}
		for r := int64(0); r < def.Rows; r++ {
			if err := a.perDs[i].robin.SetAt(r, math.NaN()); err != nil {
				return err
			}
		}
	}
	return nil
}

// def reads this archive's immutable definition back out.
func (a archive) def() (rrdpb.ArcDef, error) {
	cfStr, err := a.cf.Get()
	if err != nil {
		return rrdpb.ArcDef{}, err
	}
	cf, ok := rrdpb.ParseConsolFun(cfStr)
	if !ok {
		return rrdpb.ArcDef{}, errWrapf(ErrInvalidDefinition, "unrecognized consolidation function tag %q", cfStr)
	}
	xff, err := a.xff.Get()
	if err != nil {
		return rrdpb.ArcDef{}, err
	}
	steps, err := a.steps.Get()
	if err != nil {
		return rrdpb.ArcDef{}, err
	}
	rows, err := a.rows.Get()
	if err != nil {
		return rrdpb.ArcDef{}, err
	}
	return rrdpb.ArcDef{Cf: cf, Xff: xff, Steps: steps, Rows: rows}, nil
}

func (a archive) resetAccumulator(cf rrdpb.ConsolFun, dsIndex int64) error {
	if err := a.perDs[dsIndex].nanSteps.Set(0); err != nil {
		return err
	}
	var init float64
	switch cf {
	case rrdpb.Min:
		init = math.Inf(1)
	case rrdpb.Max:
		init = math.Inf(-1)
	case rrdpb.First, rrdpb.Last:
		init = math.NaN()
	default: // Average, Total
		init = 0
	}
	return a.perDs[dsIndex].accumulator.Set(init)
}

// fold consolidates one run of n identical-value (possibly NaN) PDP
// windows, whose first window ends at firstEnd, into dsIndex's
// accumulator, emitting and resetting the accumulator every time a
// window lands on a consolidation-window boundary (arcStep divides the
// window's end time), per spec.md §4.4.
func (a archive) fold(dsIndex int64, run pdpRun, step int64) error {
	steps, err := a.steps.Get()
	if err != nil {
		return err
	}
	cfStr, err := a.cf.Get()
	if err != nil {
		return err
	}
	cf, ok := rrdpb.ParseConsolFun(cfStr)
	if !ok {
		return errWrapf(ErrInvalidDefinition, "unrecognized consolidation function tag %q", cfStr)
	}
	xff, err := a.xff.Get()
	if err != nil {
		return err
	}
	arcStep := step * steps

	for i := int64(0); i < run.count; i++ {
		if err := a.foldOne(dsIndex, cf, run.value); err != nil {
			return err
		}
		windowEnd := run.firstEnd + i*step
		if windowEnd%arcStep == 0 {
			if err := a.emitRow(dsIndex, cf, steps, xff); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a archive) foldOne(dsIndex int64, cf rrdpb.ConsolFun, v float64) error {
	st := a.perDs[dsIndex]
	if math.IsNaN(v) {
		n, err := st.nanSteps.Get()
		if err != nil {
			return err
		}
		return st.nanSteps.Set(n + 1)
	}
	acc, err := st.accumulator.Get()
	if err != nil {
		return err
	}
	switch cf {
	case rrdpb.Average, rrdpb.Total:
		acc += v
	case rrdpb.Min:
		if v < acc {
			acc = v
		}
	case rrdpb.Max:
		if v > acc {
			acc = v
		}
	case rrdpb.First:
		if math.IsNaN(acc) {
			acc = v
		}
	case rrdpb.Last:
		acc = v
	}
	return st.accumulator.Set(acc)
}

// emitRow closes out the current consolidation window: it applies the
// xff rule, writes the consolidated value into the ring buffer, and
// resets the accumulator for the next window.
func (a archive) emitRow(dsIndex int64, cf rrdpb.ConsolFun, steps int64, xff float64) error {
	st := a.perDs[dsIndex]
	nanSteps, err := st.nanSteps.Get()
	if err != nil {
		return err
	}
	acc, err := st.accumulator.Get()
	if err != nil {
		return err
	}

	var row float64
	if float64(nanSteps)/float64(steps) >= xff {
		row = math.NaN()
	} else {
		validSteps := steps - nanSteps
		switch cf {
		case rrdpb.Average:
			if validSteps <= 0 {
				row = math.NaN()
			} else {
				row = acc / float64(validSteps)
			}
		default: // Min, Max, Last, First, Total
			row = acc
		}
	}

	ptr, err := st.writePtr.Get()
	if err != nil {
		return err
	}
	rows, err := a.rows.Get()
	if err != nil {
		return err
	}
	if err := st.robin.SetAt(ptr%rows, row); err != nil {
		return err
	}
	if err := st.writePtr.Set(ptr + 1); err != nil {
		return err
	}
	return a.resetAccumulator(cf, dsIndex)
}

// floorDiv and ceilDiv are integer division rounding toward -Inf and
// +Inf respectively (unlike Go's built-in "/", which truncates toward
// zero); archive coverage windows can be negative relative to the Unix
// epoch, so plain truncation would misalign row boundaries.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

func floorMultiple(x, m int64) int64 { return floorDiv(x, m) * m }
func ceilMultiple(x, m int64) int64  { return ceilDiv(x, m) * m }

// coverage returns the inclusive [startTime, endTime] range currently
// held in the ring buffer, derived from the database's
// header.lastUpdateTime rather than persisted, per spec.md §3.
func (a archive) coverage(lastUpdateTime, step int64) (startTime, endTime, arcStep int64, err error) {
	steps, err := a.steps.Get()
	if err != nil {
		return 0, 0, 0, err
	}
	rows, err := a.rows.Get()
	if err != nil {
		return 0, 0, 0, err
	}
	arcStep = step * steps
	endTime = (lastUpdateTime / arcStep) * arcStep
	startTime = endTime - (rows-1)*arcStep
	return startTime, endTime, arcStep, nil
}

// fetchColumn returns the timestamps and values held for dsIndex,
// restricted to the closed interval [reqStart, reqEnd] and to this
// archive's current coverage, aligned to arcStep boundaries.
func (a archive) fetchColumn(dsIndex, lastUpdateTime, step, reqStart, reqEnd int64) ([]int64, []float64, error) {
	startTime, endTime, arcStep, err := a.coverage(lastUpdateTime, step)
	if err != nil {
		return nil, nil, err
	}
	rows, err := a.rows.Get()
	if err != nil {
		return nil, nil, err
	}
	ptr, err := a.perDs[dsIndex].writePtr.Get()
	if err != nil {
		return nil, nil, err
	}

	lo := reqStart
	if startTime > lo {
		lo = startTime
	}
	lo = ceilMultiple(lo, arcStep)
	hi := reqEnd
	if endTime < hi {
		hi = endTime
	}
	hi = floorMultiple(hi, arcStep)

	var timestamps []int64
	var values []float64
	for ts := lo; ts <= hi; ts += arcStep {
		stepsBack := (endTime - ts) / arcStep
		idx := ((ptr-1-stepsBack)%rows + rows) % rows
		v, err := a.perDs[dsIndex].robin.GetAt(idx)
		if err != nil {
			return nil, nil, err
		}
		timestamps = append(timestamps, ts)
		values = append(values, v)
	}
	return timestamps, values, nil
}
