package rrd

import (
	"github.com/grailbio/rrd/backend"
	"github.com/grailbio/rrd/internal/alloc"
	"github.com/grailbio/rrd/internal/cell"
	"github.com/pkg/errors"
)

const (
	// signature is the fixed ASCII magic identifying this format and its
	// version, analogous to pamutil.DefaultVersion/ShardIndexMagic but
	// embedded directly in the file instead of a trailer.
	signature = "RRDGO0001"
	// signatureWidth is the on-disk capacity of the signature cell; the
	// value is NUL-padded to this width.
	signatureWidth = 16
	// infoCapacity is the on-disk capacity of the header's free-form info
	// string.
	infoCapacity = 128
)

// header is the fixed, database-wide metadata block: spec.md §3/§6.
type header struct {
	signature      cell.String
	step           cell.Int64
	dsCount        cell.Int64
	arcCount       cell.Int64
	lastUpdateTime cell.Int64
	info           cell.String
}

// headerWidth is the total on-disk size of the header block.
const headerWidth = signatureWidth + 4*cell.Int64Width + infoCapacity

// bindHeader binds a header at the allocator's current position,
// allocating cells in the exact declaration order fixed by spec.md §6.
func bindHeader(be backend.Backend, a *alloc.Allocator) header {
	return header{
		signature:      cell.BindString(be, a.Allocate(signatureWidth), signatureWidth),
		step:           cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		dsCount:        cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		arcCount:       cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		lastUpdateTime: cell.BindInt64(be, a.Allocate(cell.Int64Width)),
		info:           cell.BindString(be, a.Allocate(infoCapacity), infoCapacity),
	}
}

// initialize writes the header's initial values during Create.
func (h header) initialize(step, dsCount, arcCount, startTime int64, info string) error {
	if err := h.signature.Set(signature); err != nil {
		return err
	}
	if err := h.step.Set(step); err != nil {
		return err
	}
	if err := h.dsCount.Set(dsCount); err != nil {
		return err
	}
	if err := h.arcCount.Set(arcCount); err != nil {
		return err
	}
	if err := h.lastUpdateTime.Set(startTime); err != nil {
		return err
	}
	return h.info.Set(info)
}

// validateSignature checks the on-disk signature matches what this
// version of the engine expects (spec.md §4.7: "optionally validate the
// signature" on Open).
func (h header) validateSignature() error {
	sig, err := h.signature.Get()
	if err != nil {
		return err
	}
	if sig != signature {
		return errors.Errorf("rrd: unrecognized header signature %q (want %q)", sig, signature)
	}
	return nil
}
