// Package rrd implements a fixed-size, self-contained round-robin
// time-series store: a header, one or more datasources, and one or
// more round-robin archives, all laid out as declaration-ordered cells
// over a pluggable Backend.
//
// Grounded on encoding/pam/{pamwriter.go,pamreader.go,pamutil/pamutil.go}'s
// construct/validate-options/close-once shape.
package rrd

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/rrd/backend"
	"github.com/grailbio/rrd/internal/alloc"
	"github.com/grailbio/rrd/internal/cell"
	"github.com/grailbio/rrd/rrdpb"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// CreateOptions configures Create. Follows the teacher's WriteOpts +
// validate*Opts pattern (pamwriter.go).
type CreateOptions struct {
	// Info is an optional free-form string stored in the header.
	Info string
}

func validateCreateOpts(o *CreateOptions) error {
	if len(o.Info) > infoCapacity {
		return errWrapf(ErrInvalidDefinition, "info string %q exceeds header capacity %d", o.Info, infoCapacity)
	}
	return nil
}

// OpenOptions configures Open.
type OpenOptions struct {
	// ReadOnly opens the backend read-only; mutating operations fail.
	ReadOnly bool
	// ValidateSignature forces a header-signature check even if the
	// backend's factory would not normally require one (ShouldValidateHeader).
	ValidateSignature bool
}

func validateOpenOpts(o *OpenOptions) error {
	return nil
}

// Database orchestrates a header, its datasources, and its archives,
// per spec.md §4.7/§5. All mutating and read-only entry points acquire
// mu, since the spec requires single-writer, whole-database
// serialization even for readers (torn reads are otherwise possible
// when a cell spans backend buffering).
type Database struct {
	mu sync.Mutex

	be       backend.Backend
	readOnly bool
	closed   bool

	hdr         header
	datasources []datasource
	dsDefs      []rrdpb.DsDef // immutable, cached at bind time
	archives    []archive
	arcDefs     []rrdpb.ArcDef
	index       *archiveIndex
}

// Create allocates a new database for def at the URI in def.Path,
// using opts, and persists its initial state.
func Create(def rrdpb.RrdDef, opts CreateOptions) (*Database, error) {
	if err := validateCreateOpts(&opts); err != nil {
		return nil, err
	}
	if err := validateDef(def); err != nil {
		return nil, err
	}

	uri := backend.ParseURI(def.Path)
	factory, err := backend.FindFactory(uri)
	if err != nil {
		return nil, err
	}

	var a alloc.Allocator
	// First pass: walk declaration order purely to compute the total
	// size, mirroring the teacher's two-phase layout/allocate split
	// (unsafeArena sizing followed by backend creation).
	size := layoutSize(def)
	be, err := factory.Create(uri, size)
	if err != nil {
		return nil, err
	}

	db := &Database{be: be}
	db.bindAll(&a, int64(len(def.Datasources)), int64(len(def.Archives)), def.Archives)
	if a.Size() != size {
		_ = be.Close()
		return nil, errors.Errorf("rrd: internal layout size mismatch: computed %d, allocated %d", size, a.Size())
	}

	if err := db.hdr.initialize(def.Step, int64(len(def.Datasources)), int64(len(def.Archives)), def.StartTime, opts.Info); err != nil {
		_ = be.Close()
		return nil, err
	}
	for i, dsDef := range def.Datasources {
		if err := db.datasources[i].initialize(dsDef); err != nil {
			_ = be.Close()
			return nil, err
		}
	}
	for i, arcDef := range def.Archives {
		if err := db.archives[i].initialize(arcDef, int64(len(def.Datasources))); err != nil {
			_ = be.Close()
			return nil, err
		}
	}

	db.cacheDefs(def.Datasources, def.Archives)
	db.buildIndex(def.Step)
	vlog.VI(1).Infof("rrd: created %s (step=%d ds=%d arc=%d)", def.Path, def.Step, len(def.Datasources), len(def.Archives))
	return db, nil
}

// Open binds an existing database at uri. The datasource and archive
// counts, and every archive's row count, must be read from the backend
// before cells can be bound, since they determine every subsequent
// offset; Open therefore does a small bootstrap read before the full
// declaration-order walk.
func Open(rawURI string, opts OpenOptions) (*Database, error) {
	if err := validateOpenOpts(&opts); err != nil {
		return nil, err
	}
	uri := backend.ParseURI(rawURI)
	factory, err := backend.FindFactory(uri)
	if err != nil {
		return nil, err
	}
	if !factory.Exists(uri) {
		return nil, errWrapf(ErrNotFound, "rrd: %s", rawURI)
	}
	be, err := factory.Open(uri, opts.ReadOnly)
	if err != nil {
		return nil, err
	}

	dsCount, arcCount, rowCounts, err := bootstrapCounts(be)
	if err != nil {
		_ = be.Close()
		return nil, err
	}

	var a alloc.Allocator
	db := &Database{be: be, readOnly: opts.ReadOnly}
	arcDefsForBind := make([]rrdpb.ArcDef, arcCount)
	for i, rows := range rowCounts {
		arcDefsForBind[i].Rows = rows
	}
	db.bindAll(&a, dsCount, arcCount, arcDefsForBind)

	if opts.ValidateSignature || factory.ShouldValidateHeader(uri) {
		if err := db.hdr.validateSignature(); err != nil {
			_ = be.Close()
			return nil, err
		}
	}

	dsDefs := make([]rrdpb.DsDef, dsCount)
	for i := range db.datasources {
		def, err := db.datasources[i].def()
		if err != nil {
			_ = be.Close()
			return nil, err
		}
		dsDefs[i] = def
	}
	arcDefs := make([]rrdpb.ArcDef, arcCount)
	for i := range db.archives {
		def, err := db.archives[i].def()
		if err != nil {
			_ = be.Close()
			return nil, err
		}
		arcDefs[i] = def
	}

	step, err := db.hdr.step.Get()
	if err != nil {
		_ = be.Close()
		return nil, err
	}
	db.cacheDefs(dsDefs, arcDefs)
	db.buildIndex(step)
	return db, nil
}

// bootstrapCounts reads just enough of an existing file (header counts,
// then each archive's row count in turn) to compute the full
// declaration-order layout, before the real binding walk in bindAll.
// Each archive's "rows" field sits at a fixed position within its
// header block (cf, xff, steps, rows), which must match bindArchive's
// field order exactly.
func bootstrapCounts(be backend.Backend) (dsCount, arcCount int64, rowCounts []int64, err error) {
	var a alloc.Allocator
	hdr := bindHeader(be, &a)
	dsCount, err = hdr.dsCount.Get()
	if err != nil {
		return 0, 0, nil, err
	}
	arcCount, err = hdr.arcCount.Get()
	if err != nil {
		return 0, 0, nil, err
	}
	for i := int64(0); i < dsCount; i++ {
		bindDatasource(be, &a)
	}
	rowCounts = make([]int64, arcCount)
	for i := int64(0); i < arcCount; i++ {
		a.Allocate(cfWidth)            // cf
		a.Allocate(cell.Float64Width)  // xff
		a.Allocate(cell.Int64Width)    // steps
		rowsOffset := a.Allocate(cell.Int64Width)
		rows, err := cell.BindInt64(be, rowsOffset).Get()
		if err != nil {
			return 0, 0, nil, err
		}
		rowCounts[i] = rows
		// Consume the rest of this archive's width (per-ds accumulator
		// state, then per-ds ring+write-ptr) so the allocator lands
		// exactly where the next archive begins.
		a.Allocate(dsCount * (cell.Float64Width + cell.Int64Width))
		a.Allocate(dsCount * (rows*cell.Float64Width + cell.Int64Width))
	}
	return dsCount, arcCount, rowCounts, nil
}

// bindAll walks the full declaration order (header, every datasource,
// every archive) and stores the bound entities on db. arcDefsForRows
// supplies each archive's row count, which must already be known
// (either from the RrdDef being created, or from bootstrapCounts).
func (db *Database) bindAll(a *alloc.Allocator, dsCount, arcCount int64, arcDefsForRows []rrdpb.ArcDef) {
	db.hdr = bindHeader(db.be, a)
	db.datasources = make([]datasource, dsCount)
	for i := int64(0); i < dsCount; i++ {
		db.datasources[i] = bindDatasource(db.be, a)
	}
	db.archives = make([]archive, arcCount)
	for i := int64(0); i < arcCount; i++ {
		db.archives[i] = bindArchive(db.be, a, dsCount, arcDefsForRows[i].Rows)
	}
}

func (db *Database) cacheDefs(dsDefs []rrdpb.DsDef, arcDefs []rrdpb.ArcDef) {
	db.dsDefs = dsDefs
	db.arcDefs = arcDefs
}

func (db *Database) buildIndex(step int64) {
	db.index = newArchiveIndex()
	for i, def := range db.arcDefs {
		db.index.add(def.Cf.String(), step*def.Steps, int64(i), i)
	}
}

// layoutSize computes the total backend size for def without binding
// any cells, so Create can size the backend before allocating.
func layoutSize(def rrdpb.RrdDef) int64 {
	size := headerWidth
	size += int64(len(def.Datasources)) * datasourceWidth
	for _, arcDef := range def.Archives {
		size += archiveWidth(int64(len(def.Datasources)), arcDef.Rows)
	}
	return size
}

func validateDef(def rrdpb.RrdDef) error {
	if len(def.Datasources) == 0 {
		return errWrapf(ErrInvalidDefinition, "rrd: at least one datasource is required")
	}
	if len(def.Archives) == 0 {
		return errWrapf(ErrInvalidDefinition, "rrd: at least one archive is required")
	}
	if def.Step <= 0 {
		return errWrapf(ErrInvalidDefinition, "rrd: step must be positive, got %d", def.Step)
	}
	seen := make(map[string]bool, len(def.Datasources))
	for _, ds := range def.Datasources {
		if ds.Heartbeat <= 0 {
			return errWrapf(ErrInvalidDefinition, "rrd: datasource %q: heartbeat must be positive", ds.Name)
		}
		if !math.IsNaN(ds.Min) && !math.IsNaN(ds.Max) && ds.Min >= ds.Max {
			return errWrapf(ErrInvalidDefinition, "rrd: datasource %q: min must be < max", ds.Name)
		}
		if seen[ds.Name] {
			return errWrapf(ErrInvalidDefinition, "rrd: duplicate datasource name %q", ds.Name)
		}
		seen[ds.Name] = true
	}
	for _, arcDef := range def.Archives {
		if arcDef.Steps <= 0 || arcDef.Rows <= 0 {
			return errWrapf(ErrInvalidDefinition, "rrd: archive steps and rows must be positive")
		}
		if arcDef.Xff < 0 || arcDef.Xff >= 1 {
			return errWrapf(ErrInvalidDefinition, "rrd: archive xff must be in [0,1), got %v", arcDef.Xff)
		}
	}
	return nil
}

// Update folds one timestamped sample into every datasource and, where
// a PDP window completes, every archive, per spec.md §4.5.
func (db *Database) Update(sample rrdpb.Sample) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if db.readOnly {
		return errWrapf(ErrIOFailure, "rrd: database opened read-only")
	}
	if len(sample.Values) != len(db.datasources) {
		return errWrapf(ErrInvalidDefinition, "rrd: sample has %d values, database has %d datasources", len(sample.Values), len(db.datasources))
	}

	lastUpdateTime, err := db.hdr.lastUpdateTime.Get()
	if err != nil {
		return err
	}
	if sample.Time <= lastUpdateTime {
		return errWrapf(ErrInvalidTimestamp, "rrd: sample time %d <= last update time %d", sample.Time, lastUpdateTime)
	}
	step, err := db.hdr.step.Get()
	if err != nil {
		return err
	}

	runs := make([][]pdpRun, len(db.datasources))
	// Per-datasource PDP processing touches disjoint cells, so it's safe
	// to fan out across goroutines; see SPEC_FULL.md §4.9.
	if err := traverse.Each(len(db.datasources), func(i int) error {
		r, err := db.datasources[i].process(step, lastUpdateTime, sample.Time, sample.Values[i])
		if err != nil {
			return err
		}
		runs[i] = r
		return nil
	}); err != nil {
		return err
	}

	for dsIndex, dsRuns := range runs {
		for _, run := range dsRuns {
			for arcIndex := range db.archives {
				if err := db.archives[arcIndex].fold(int64(dsIndex), run, step); err != nil {
					return err
				}
			}
		}
	}

	if err := db.hdr.lastUpdateTime.Set(sample.Time); err != nil {
		return err
	}
	return nil
}

// Fetch selects the best archive for req and reads its data, per
// spec.md §4.6.
func (db *Database) Fetch(req rrdpb.FetchRequest) (rrdpb.FetchData, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return rrdpb.FetchData{}, ErrClosed
	}

	step, err := db.hdr.step.Get()
	if err != nil {
		return rrdpb.FetchData{}, err
	}
	lastUpdateTime, err := db.hdr.lastUpdateTime.Get()
	if err != nil {
		return rrdpb.FetchData{}, err
	}

	arcIndex, err := db.findMatchingArchive(req.Cf, req.Start, req.End, req.Resolution, step, lastUpdateTime)
	if err != nil {
		return rrdpb.FetchData{}, err
	}
	ar := db.archives[arcIndex]
	_, _, arcStep, err := ar.coverage(lastUpdateTime, step)
	if err != nil {
		return rrdpb.FetchData{}, err
	}

	vlog.VI(2).Infof("rrd: fetch cf=%v range=[%d,%d] resolution=%d -> archive %d (arcStep=%d)", req.Cf, req.Start, req.End, req.Resolution, arcIndex, arcStep)

	data := rrdpb.FetchData{ArcStep: arcStep, DsNames: make([]string, len(db.datasources))}
	var timestamps []int64
	values := make([][]float64, len(db.datasources))
	for i := range db.datasources {
		ts, vs, err := ar.fetchColumn(int64(i), lastUpdateTime, step, req.Start, req.End)
		if err != nil {
			return rrdpb.FetchData{}, err
		}
		if timestamps == nil {
			timestamps = ts
		}
		values[i] = vs
		data.DsNames[i] = db.dsDefs[i].Name
	}
	data.Timestamps = timestamps
	data.Values = values
	return data, nil
}

// findMatchingArchive implements spec.md §4.6's selection algorithm. It
// narrows to the candidate set for cf via the ordered index built by
// buildIndex, rather than scanning every archive definition.
func (db *Database) findMatchingArchive(cf rrdpb.ConsolFun, start, end, resolution, step, lastUpdateTime int64) (int, error) {
	type candidate struct {
		idx           int
		arcStep       int64
		effectiveFrom int64 // archive.start_time - arcStep
		full          bool
	}
	var candidates []candidate
	for _, i := range db.index.forCf(cf.String()) {
		startTime, _, arcStep, err := db.archives[i].coverage(lastUpdateTime, step)
		if err != nil {
			return 0, err
		}
		effectiveFrom := startTime - arcStep
		candidates = append(candidates, candidate{
			idx:           i,
			arcStep:       arcStep,
			effectiveFrom: effectiveFrom,
			full:          effectiveFrom <= start,
		})
	}
	if len(candidates) == 0 {
		return 0, errWrapf(ErrNoMatchingArchive, "rrd: no archive with consolidation function %v", cf)
	}

	var full, partial []candidate
	for _, c := range candidates {
		if c.full {
			full = append(full, c)
		} else {
			partial = append(partial, c)
		}
	}

	dist := func(arcStep int64) int64 {
		d := arcStep - resolution
		if d < 0 {
			d = -d
		}
		return d
	}

	if len(full) > 0 {
		sort.SliceStable(full, func(i, j int) bool {
			if dist(full[i].arcStep) != dist(full[j].arcStep) {
				return dist(full[i].arcStep) < dist(full[j].arcStep)
			}
			return full[i].idx < full[j].idx
		})
		return full[0].idx, nil
	}

	coverage := func(c candidate) int64 {
		from := start
		if c.effectiveFrom > from {
			from = c.effectiveFrom
		}
		return end - from
	}
	sort.SliceStable(partial, func(i, j int) bool {
		if coverage(partial[i]) != coverage(partial[j]) {
			return coverage(partial[i]) > coverage(partial[j])
		}
		if dist(partial[i].arcStep) != dist(partial[j].arcStep) {
			return dist(partial[i].arcStep) < dist(partial[j].arcStep)
		}
		return partial[i].idx < partial[j].idx
	})
	return partial[0].idx, nil
}

// GetRrdDef returns a definition suitable for recreating an empty,
// structurally identical database.
func (db *Database) GetRrdDef() (rrdpb.RrdDef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return rrdpb.RrdDef{}, ErrClosed
	}
	step, err := db.hdr.step.Get()
	if err != nil {
		return rrdpb.RrdDef{}, err
	}
	startTime, err := db.hdr.lastUpdateTime.Get()
	if err != nil {
		return rrdpb.RrdDef{}, err
	}
	return rrdpb.RrdDef{
		Path:        db.be.Path(),
		StartTime:   startTime,
		Step:        step,
		Version:     1,
		Datasources: append([]rrdpb.DsDef(nil), db.dsDefs...),
		Archives:    append([]rrdpb.ArcDef(nil), db.arcDefs...),
	}, nil
}

// Datasource returns the definition of the datasource named name, or
// ErrUnknownDatasource if no datasource with that name exists.
func (db *Database) Datasource(name string) (rrdpb.DsDef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return rrdpb.DsDef{}, ErrClosed
	}
	for _, def := range db.dsDefs {
		if def.Name == name {
			return def, nil
		}
	}
	return rrdpb.DsDef{}, errWrapf(ErrUnknownDatasource, "rrd: no datasource named %q", name)
}

// Archive returns the definition of the archive matching (cf, steps),
// or ErrUnknownArchive if no archive with that consolidation function
// and step count exists.
func (db *Database) Archive(cf rrdpb.ConsolFun, steps int64) (rrdpb.ArcDef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return rrdpb.ArcDef{}, ErrClosed
	}
	for _, def := range db.arcDefs {
		if def.Cf == cf && def.Steps == steps {
			return def, nil
		}
	}
	return rrdpb.ArcDef{}, errWrapf(ErrUnknownArchive, "rrd: no archive with cf=%v steps=%d", cf, steps)
}

// SetInfo overwrites the header's free-form info string, per spec.md §5.
func (db *Database) SetInfo(info string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if db.readOnly {
		return errWrapf(ErrIOFailure, "rrd: database opened read-only")
	}
	if len(info) > infoCapacity {
		return errWrapf(ErrInvalidDefinition, "info string %q exceeds header capacity %d", info, infoCapacity)
	}
	return db.hdr.info.Set(info)
}

// GetBytes returns the database's entire backing store, verbatim, per
// spec.md §5. Used for out-of-band replication/backup of the raw file.
func (db *Database) GetBytes() ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	return db.be.ReadAll()
}

// CopyStateTo copies header, per-datasource state by name-match, and
// per-archive state by (cf, steps)-match onto dst. Unmatched entities
// are skipped silently (spec.md §4.7), with a warning logged so a
// mismatch isn't completely invisible in practice.
func (db *Database) CopyStateTo(dst *Database) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()
	if db.closed || dst.closed {
		return ErrClosed
	}

	srcStep, err := db.hdr.step.Get()
	if err != nil {
		return err
	}
	dstStep, err := dst.hdr.step.Get()
	if err != nil {
		return err
	}
	if srcStep != dstStep {
		return errWrapf(ErrIncompatibleCopy, "rrd: CopyStateTo: source step %d != target step %d", srcStep, dstStep)
	}

	lastUpdateTime, err := db.hdr.lastUpdateTime.Get()
	if err != nil {
		return err
	}
	if err := dst.hdr.lastUpdateTime.Set(lastUpdateTime); err != nil {
		return err
	}

	dstByName := make(map[string]int, len(dst.dsDefs))
	for i, def := range dst.dsDefs {
		dstByName[def.Name] = i
	}
	for i, def := range db.dsDefs {
		j, ok := dstByName[def.Name]
		if !ok {
			log.Printf("rrd: CopyStateTo: skipping datasource %q, not present in target", def.Name)
			continue
		}
		if err := copyDatasourceState(db.datasources[i], dst.datasources[j]); err != nil {
			return err
		}
	}

	type arcKey struct {
		cf    rrdpb.ConsolFun
		steps int64
	}
	dstByArc := make(map[arcKey]int, len(dst.arcDefs))
	for i, def := range dst.arcDefs {
		dstByArc[arcKey{def.Cf, def.Steps}] = i
	}
	for i, def := range db.arcDefs {
		j, ok := dstByArc[arcKey{def.Cf, def.Steps}]
		if !ok {
			log.Printf("rrd: CopyStateTo: skipping archive cf=%v steps=%d, not present in target", def.Cf, def.Steps)
			continue
		}
		if err := copyArchiveState(db.archives[i], dst.archives[j], int64(len(db.dsDefs))); err != nil {
			return err
		}
	}
	return nil
}

func copyDatasourceState(src, dst datasource) error {
	raw, err := src.lastRawValue.Get()
	if err != nil {
		return err
	}
	acc, err := src.accumulatedValue.Get()
	if err != nil {
		return err
	}
	unk, err := src.unknownSeconds.Get()
	if err != nil {
		return err
	}
	if err := dst.lastRawValue.Set(raw); err != nil {
		return err
	}
	if err := dst.accumulatedValue.Set(acc); err != nil {
		return err
	}
	return dst.unknownSeconds.Set(unk)
}

func copyArchiveState(src, dst archive, dsCount int64) error {
	for i := int64(0); i < dsCount; i++ {
		acc, err := src.perDs[i].accumulator.Get()
		if err != nil {
			return err
		}
		nan, err := src.perDs[i].nanSteps.Get()
		if err != nil {
			return err
		}
		ptr, err := src.perDs[i].writePtr.Get()
		if err != nil {
			return err
		}
		rows, err := src.rows.Get()
		if err != nil {
			return err
		}
		if err := dst.perDs[i].accumulator.Set(acc); err != nil {
			return err
		}
		if err := dst.perDs[i].nanSteps.Set(nan); err != nil {
			return err
		}
		if err := dst.perDs[i].writePtr.Set(ptr); err != nil {
			return err
		}
		for r := int64(0); r < rows; r++ {
			v, err := src.perDs[i].robin.GetAt(r)
			if err != nil {
				return err
			}
			if err := dst.perDs[i].robin.SetAt(r, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dump returns a textual, human-readable representation of the
// database's current state, used for equality checks in tests and for
// debugging. Grounded on the teacher's general "stringify everything
// for comparison" test idiom (encoding/pam/pam_test.go).
func (db *Database) Dump() (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return "", ErrClosed
	}
	step, err := db.hdr.step.Get()
	if err != nil {
		return "", err
	}
	lastUpdateTime, err := db.hdr.lastUpdateTime.Get()
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("step=%d last_update_time=%d\n", step, lastUpdateTime)
	for i, def := range db.dsDefs {
		raw, _ := db.datasources[i].lastRawValue.Get()
		acc, _ := db.datasources[i].accumulatedValue.Get()
		unk, _ := db.datasources[i].unknownSeconds.Get()
		out += fmt.Sprintf("ds[%d] %s type=%v heartbeat=%d last_raw=%v acc=%v unknown=%d\n",
			i, def.Name, def.Type, def.Heartbeat, raw, acc, unk)
	}
	for i, def := range db.arcDefs {
		startTime, endTime, arcStep, err := db.archives[i].coverage(lastUpdateTime, step)
		if err != nil {
			return "", err
		}
		out += fmt.Sprintf("arc[%d] cf=%v steps=%d rows=%d xff=%v start=%d end=%d arcStep=%d\n",
			i, def.Cf, def.Steps, def.Rows, def.Xff, startTime, endTime, arcStep)
		for d := range db.datasources {
			rows := def.Rows
			vals := make([]float64, 0, rows)
			for r := int64(0); r < rows; r++ {
				v, err := db.archives[i].perDs[d].robin.GetAt(r)
				if err != nil {
					return "", err
				}
				vals = append(vals, v)
			}
			out += fmt.Sprintf("  ds[%d] robin=%v\n", d, vals)
		}
	}
	return out, nil
}

// Close closes the owned backend exactly once; after Close, every
// operation fails with ErrClosed. Idempotent per spec.md §4.7.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	var once errOnce
	once.set(db.be.Close())
	return once.get()
}
