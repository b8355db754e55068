package rrd

import (
	"math"

	"github.com/grailbio/rrd/backend"
	"github.com/grailbio/rrd/internal/alloc"
	"github.com/grailbio/rrd/internal/cell"
	"github.com/grailbio/rrd/rrdpb"
)

const (
	dsNameWidth = 20
	// dsTypeWidth must hold the longest DsType tag ("ABSOLUTE", 8 bytes);
	// a narrower cell truncates the tag on write with no NUL left to trim
	// on read, so ParseDsType would fail on every subsequent read.
	dsTypeWidth = 8
)

// datasourceWidth is the on-disk size of one datasource block (spec.md §6).
const datasourceWidth = dsNameWidth + dsTypeWidth + cell.Int64Width /*heartbeat*/ +
	cell.Float64Width /*min*/ + cell.Float64Width /*max*/ +
	cell.Float64Width /*lastRawValue*/ + cell.Float64Width /*accumulatedValue*/ +
	cell.Int64Width /*unknownSeconds*/

// datasource is one signal's persistent state and PDP accumulator.
//
// The on-disk layout intentionally has no separate "current pdp" cell:
// spec.md §6 enumerates the datasource's persisted fields exhaustively
// (name, type, heartbeat, min, max, last-raw-value, accumulated-value,
// unknown-seconds) and a resumable partial window is already fully
// determined by accumulated-value and unknown-seconds, so nothing is
// lost by not persisting the last computed PDP separately.
type datasource struct {
	name      cell.String
	dsType    cell.String
	heartbeat cell.Int64
	min       cell.Float64
	max       cell.Float64

	lastRawValue     cell.Float64
	accumulatedValue cell.Float64
	unknownSeconds   cell.Int64

	// lastRate is in-memory-only bookkeeping for COUNTER wrap detection
	// (spec.md §9 Open Question): the last successfully computed rate,
	// used as the 10x sanity bound for accepting a wrap candidate. It does
	// not survive a close/reopen, since it has no cell in the on-disk
	// layout; the first wrap after reopening a database is accepted
	// without a magnitude check.
	lastRate float64
}

func bindDatasource(be backend.Backend, a *alloc.Allocator) datasource {
	return datasource{
		name:             cell.BindString(be, a.Allocate(dsNameWidth), dsNameWidth),
		dsType:           cell.BindString(be, a.Allocate(dsTypeWidth), dsTypeWidth),
		heartbeat:        cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		min:              cell.BindFloat64(be, a.Allocate(cell.Float64Width)),
		max:              cell.BindFloat64(be, a.Allocate(cell.Float64Width)),
		lastRawValue:     cell.BindFloat64(be, a.Allocate(cell.Float64Width)),
		accumulatedValue: cell.BindFloat64(be, a.Allocate(cell.Float64Width)),
		unknownSeconds:   cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		lastRate:         math.NaN(),
	}
}

func (d datasource) initialize(def rrdpb.DsDef) error {
	if err := d.name.Set(def.Name); err != nil {
		return err
	}
	if err := d.dsType.Set(def.Type.String()); err != nil {
		return err
	}
	if err := d.heartbeat.Set(def.Heartbeat); err != nil {
		return err
	}
	if err := d.min.Set(def.Min); err != nil {
		return err
	}
	if err := d.max.Set(def.Max); err != nil {
		return err
	}
	if err := d.lastRawValue.Set(math.NaN()); err != nil {
		return err
	}
	if err := d.accumulatedValue.Set(0); err != nil {
		return err
	}
	return d.unknownSeconds.Set(0)
}

// def reads this datasource's immutable definition back out.
func (d datasource) def() (rrdpb.DsDef, error) {
	name, err := d.name.Get()
	if err != nil {
		return rrdpb.DsDef{}, err
	}
	typeStr, err := d.dsType.Get()
	if err != nil {
		return rrdpb.DsDef{}, err
	}
	dsType, ok := rrdpb.ParseDsType(typeStr)
	if !ok {
		return rrdpb.DsDef{}, errInvalidDsType(typeStr)
	}
	heartbeat, err := d.heartbeat.Get()
	if err != nil {
		return rrdpb.DsDef{}, err
	}
	min, err := d.min.Get()
	if err != nil {
		return rrdpb.DsDef{}, err
	}
	max, err := d.max.Get()
	if err != nil {
		return rrdpb.DsDef{}, err
	}
	return rrdpb.DsDef{Name: name, Type: dsType, Heartbeat: heartbeat, Min: min, Max: max}, nil
}

func errInvalidDsType(tag string) error {
	return errWrapf(ErrInvalidDefinition, "unrecognized datasource type tag %q", tag)
}

// completedWindow is one finished step-aligned PDP window, produced
// internally by process before run-length-encoding.
type completedWindow struct {
	value float64
	end   int64
}

// pdpRun is a run of consecutive completed PDP windows sharing the same
// value, produced by process and folded into each archive. Folding a
// run of n identical PDPs at once is equivalent to folding one PDP n
// times (see archive.fold); batching only avoids redundant work when a
// sample gap spans many step boundaries with a constant (possibly NaN)
// rate, per spec.md §4.3's "elapsed_steps" parameter to archive.archive.
type pdpRun struct {
	value float64
	count int64
	// firstEnd is the absolute timestamp at which the first PDP window in
	// this run completed. Windows in a run are consecutive step-aligned
	// intervals, so the i'th window (0-indexed) ends at firstEnd+i*step;
	// archive.fold uses this to tell, without a separate persisted
	// counter, which of the n windows lands on a consolidation-window
	// boundary (arcStep divides firstEnd+i*step evenly).
	firstEnd int64
}

// process folds one incoming sample into the datasource's PDP
// accumulator, per spec.md §4.3. now must be strictly greater than
// lastUpdateTime (the caller, Database.Update, enforces this). It
// returns the run-length-encoded list of PDPs completed by this sample,
// in chronological order; the caller folds each run into every archive.
func (d *datasource) process(step, lastUpdateTime, now int64, raw float64) ([]pdpRun, error) {
	prevRaw, err := d.lastRawValue.Get()
	if err != nil {
		return nil, err
	}
	dsType, err := d.dsType.Get()
	if err != nil {
		return nil, err
	}
	typ, ok := rrdpb.ParseDsType(dsType)
	if !ok {
		return nil, errInvalidDsType(dsType)
	}
	heartbeat, err := d.heartbeat.Get()
	if err != nil {
		return nil, err
	}
	min, err := d.min.Get()
	if err != nil {
		return nil, err
	}
	max, err := d.max.Get()
	if err != nil {
		return nil, err
	}

	dt := now - lastUpdateTime
	rate := computeRate(typ, prevRaw, raw, dt, d.lastRate)
	if !math.IsNaN(rate) {
		d.lastRate = rate
	}

	// Validity filter (spec.md §4.3).
	if dt > heartbeat {
		rate = math.NaN()
	} else if !math.IsNaN(rate) {
		if !math.IsNaN(min) && rate < min {
			rate = math.NaN()
		}
		if !math.IsNaN(max) && rate > max {
			rate = math.NaN()
		}
	}

	accumulated, err := d.accumulatedValue.Get()
	if err != nil {
		return nil, err
	}
	unknownSeconds, err := d.unknownSeconds.Get()
	if err != nil {
		return nil, err
	}

	var completed []completedWindow
	t := lastUpdateTime
	for t < now {
		winStart := (t / step) * step
		winEnd := winStart + step
		segEnd := winEnd
		if now < segEnd {
			segEnd = now
		}
		segLen := segEnd - t
		if math.IsNaN(rate) {
			unknownSeconds += segLen
		} else {
			accumulated += rate * float64(segLen)
		}
		t = segEnd
		if t == winEnd {
			var pdp float64
			if unknownSeconds <= heartbeat {
				pdp = accumulated / float64(step-unknownSeconds)
			} else {
				pdp = math.NaN()
			}
			completed = append(completed, completedWindow{value: pdp, end: winEnd})
			accumulated = 0
			unknownSeconds = 0
		}
	}

	if err := d.lastRawValue.Set(raw); err != nil {
		return nil, err
	}
	if err := d.accumulatedValue.Set(accumulated); err != nil {
		return nil, err
	}
	if err := d.unknownSeconds.Set(unknownSeconds); err != nil {
		return nil, err
	}

	return runLengthEncode(completed), nil
}

// computeRate converts a raw sample into a rate, per spec.md §4.3's
// per-type table. lastRate is the previously accepted rate, used only
// for COUNTER wrap-candidate validation; NaN means no baseline exists
// yet, in which case the first wrap candidate is accepted outright.
func computeRate(typ rrdpb.DsType, prev, raw float64, dt int64, lastRate float64) float64 {
	switch typ {
	case rrdpb.Gauge:
		return raw
	case rrdpb.Counter:
		if math.IsNaN(raw) || math.IsNaN(prev) {
			return math.NaN()
		}
		if raw >= prev {
			return (raw - prev) / float64(dt)
		}
		for _, wrap := range []float64{math.Exp2(32), math.Exp2(64)} {
			cand := (wrap - prev + raw) / float64(dt)
			if math.IsNaN(lastRate) || math.Abs(cand) <= 10*math.Abs(lastRate) {
				return cand
			}
		}
		return math.NaN()
	case rrdpb.Derive:
		if math.IsNaN(raw) || math.IsNaN(prev) {
			return math.NaN()
		}
		return (raw - prev) / float64(dt)
	case rrdpb.Absolute:
		return raw / float64(dt)
	default:
		return math.NaN()
	}
}

// runLengthEncode merges consecutive equal values (NaN treated as equal
// to NaN) into (value, count, firstEnd) runs.
func runLengthEncode(windows []completedWindow) []pdpRun {
	var runs []pdpRun
	for _, w := range windows {
		if n := len(runs); n > 0 && pdpEqual(runs[n-1].value, w.value) {
			runs[n-1].count++
			continue
		}
		runs = append(runs, pdpRun{value: w.value, count: 1, firstEnd: w.end})
	}
	return runs
}

func pdpEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
